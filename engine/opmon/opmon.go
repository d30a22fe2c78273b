package opmon

import (
	"sort"
	"sync"
	"time"

	"github.com/netbricks/netbricks/engine/gwlog"
)

var (
	operationAllocPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}
)

// OpInfo is the accumulated timing of one operation name
type OpInfo struct {
	Name          string
	Count         uint64
	TotalDuration time.Duration
	MaxDuration   time.Duration
}

// Average returns the mean duration of the operation
func (info *OpInfo) Average() time.Duration {
	if info.Count == 0 {
		return 0
	}
	return info.TotalDuration / time.Duration(info.Count)
}

// Monitor records operation durations for one sample window
type Monitor struct {
	sync.Mutex
	opInfos map[string]*OpInfo
}

// NewMonitor creates an empty Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		opInfos: map[string]*OpInfo{},
	}
}

func (monitor *Monitor) record(opname string, duration time.Duration) {
	monitor.Lock()
	info := monitor.opInfos[opname]
	if info == nil {
		info = &OpInfo{Name: opname}
		monitor.opInfos[opname] = info
	}
	info.Count += 1
	info.TotalDuration += duration
	if duration > info.MaxDuration {
		info.MaxDuration = duration
	}
	monitor.Unlock()
}

// Reset clears the sample window and returns its infos sorted by name
func (monitor *Monitor) Reset() []OpInfo {
	var opInfos map[string]*OpInfo
	monitor.Lock()
	opInfos = monitor.opInfos
	monitor.opInfos = map[string]*OpInfo{} // clear to be empty
	monitor.Unlock()

	infos := make([]OpInfo, 0, len(opInfos))
	for _, opinfo := range opInfos {
		infos = append(infos, *opinfo)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Dump logs the sample window and resets it
func (monitor *Monitor) Dump() {
	for _, info := range monitor.Reset() {
		gwlog.Infof("opmon: %-30s x%-10d AVG %-10s MAX %-10s", info.Name, info.Count, info.Average(), info.MaxDuration)
	}
}

// Operation is the type of operation to be monitored
type Operation struct {
	monitor   *Monitor
	name      string
	startTime time.Time
}

// StartOperation creates a new operation
func (monitor *Monitor) StartOperation(operationName string) *Operation {
	op := operationAllocPool.Get().(*Operation)
	op.monitor = monitor
	op.name = operationName
	op.startTime = time.Now()
	return op
}

// Finish finishes the operation and records the duration of operation
func (op *Operation) Finish(warnThreshold time.Duration) {
	takeTime := time.Since(op.startTime)
	op.monitor.record(op.name, takeTime)
	if takeTime >= warnThreshold {
		gwlog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	op.monitor = nil
	operationAllocPool.Put(op)
}
