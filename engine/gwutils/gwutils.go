package gwutils

import "github.com/netbricks/netbricks/engine/gwlog"

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (panicked bool) {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("%p panic: %v", f, err)
			panicked = true
		}
	}()

	f()
	return
}

// CatchPanic runs f and converts a panic into the returned value
func CatchPanic(f func()) (err interface{}) {
	defer func() {
		err = recover()
	}()

	f()
	return
}
