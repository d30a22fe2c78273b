package async

import (
	"fmt"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"

	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/post"
)

// AsyncCallback receives the result of an AsyncRoutine on the main game routine
type AsyncCallback func(res interface{}, err error)

// AsyncRoutine runs on the worker goroutine
type AsyncRoutine func() (res interface{}, err error)

type asyncJobItem struct {
	routine  AsyncRoutine
	callback AsyncCallback
}

// AsyncJobWorker runs jobs one at a time on its own goroutine
//
// Results are handed back through a post.Queue, which the main game routine drains once per tick.
// The job queue and the result queue are the only state shared with the worker goroutine.
type AsyncJobWorker struct {
	name       string
	jobQueue   *xnsyncutil.SyncQueue
	results    *post.Queue
	terminated *xnsyncutil.OneTimeCond
}

// NewAsyncJobWorker starts a worker delivering callbacks to results
func NewAsyncJobWorker(name string, results *post.Queue) *AsyncJobWorker {
	ajw := &AsyncJobWorker{
		name:       name,
		jobQueue:   xnsyncutil.NewSyncQueue(),
		results:    results,
		terminated: xnsyncutil.NewOneTimeCond(),
	}
	go ajw.loop()
	return ajw
}

// AppendJob queues a routine; its callback is posted to the result queue when it finishes
func (ajw *AsyncJobWorker) AppendJob(routine AsyncRoutine, callback AsyncCallback) {
	ajw.jobQueue.Push(&asyncJobItem{routine, callback})
	if qlen := ajw.jobQueue.Len(); qlen > consts.ASYNC_JOB_QUEUE_MAXLEN {
		gwlog.Warnf("async worker %s: job queue length = %d", ajw.name, qlen)
	}
}

// Shutdown closes the job queue and waits for queued jobs to finish
func (ajw *AsyncJobWorker) Shutdown() {
	ajw.jobQueue.Close()
	ajw.terminated.Wait()
}

func (ajw *AsyncJobWorker) loop() {
	defer ajw.terminated.Signal()

	for {
		item := ajw.jobQueue.Pop()
		if item == nil { // queue is closed, returning nil
			break
		}

		job := item.(*asyncJobItem)
		res, err := runRoutine(job.routine)
		if job.callback != nil {
			callback := job.callback
			ajw.results.Post(func() {
				callback(res, err)
			})
		}
	}
}

func runRoutine(routine AsyncRoutine) (res interface{}, err error) {
	defer func() {
		if perr := recover(); perr != nil {
			gwlog.TraceError("async routine panic: %v", perr)
			err = fmt.Errorf("async routine panic: %v", perr)
		}
	}()
	return routine()
}
