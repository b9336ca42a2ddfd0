// Package routine runs background goroutines with panic recovery and lets the
// owner wait for all of them to finish.
package routine

import (
	"context"
	"runtime/debug"
	"sync"
)

// PanicFunc receives a recovered panic value and the stack of the goroutine
// that panicked.
type PanicFunc func(name string, v any, stack []byte)

// Runner tracks the goroutines it starts.
type Runner struct {
	onPanic PanicFunc
	wg      sync.WaitGroup
}

// New returns a Runner. onPanic may be nil.
func New(onPanic PanicFunc) *Runner {
	return &Runner{onPanic: onPanic}
}

// Go runs fn in a new goroutine. A panic in fn is recovered and reported to
// the runner's PanicFunc; it never crashes the process.
func (r *Runner) Go(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.recover(name)
		fn()
	}()
}

// Wait blocks until every goroutine started by Go returned, or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) recover(name string) {
	if rec := recover(); rec != nil {
		if r.onPanic != nil {
			r.onPanic(name, rec, debug.Stack())
		}
	}
}

// Call runs fn on the calling goroutine and converts a panic into
// (v, stack, true).
func Call(fn func()) (v any, stack []byte, panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			v, stack, panicked = rec, debug.Stack(), true
		}
	}()
	fn()
	return nil, nil, false
}
