package post

import (
	"sync"

	"github.com/netbricks/netbricks/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Queue collects callbacks from any goroutine and runs them on the main game routine
type Queue struct {
	lock      sync.Mutex
	callbacks []PostCallback
}

// NewQueue creates an empty callback queue
func NewQueue() *Queue {
	return &Queue{}
}

// Post a callback which will be executed at the next Tick of the main game routine
//
// Post might be called from other goroutine, so we use a lock to protect the data
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()
}

// Len returns the number of callbacks waiting for the next Tick
func (q *Queue) Len() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick runs the callbacks posted before this call
//
// Callbacks posted while ticking wait for the next Tick.
func (q *Queue) Tick() int {
	q.lock.Lock()
	if len(q.callbacks) == 0 {
		q.lock.Unlock()
		return 0
	}
	// switch callbacks in locked section
	callbacksCopy := q.callbacks
	q.callbacks = make([]PostCallback, 0, len(callbacksCopy))
	q.lock.Unlock()

	for _, f := range callbacksCopy {
		gwutils.RunPanicless(f)
	}
	return len(callbacksCopy)
}
