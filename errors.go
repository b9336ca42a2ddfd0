package flowcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by getters when there is no fresh cached value
	// and no fetch failure to report instead.
	ErrNotFound = errors.New("flowcache: no valid cached value")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("flowcache: store closed")

	// ErrStopped is returned by Subscription.Start after Stop.
	ErrStopped = errors.New("flowcache: subscription stopped")

	// ErrPagingUnsupported is returned by gateway adapters with no paging funcs.
	ErrPagingUnsupported = errors.New("flowcache: gateway does not support paging")
)

// FetchError wraps whatever the Origin Gateway returned (or a failed save of
// the fetched value). It is the cause carried by Error states.
type FetchError struct {
	Key  string
	Kind RequestKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("flowcache: %s fetch for %q failed: %v", e.Kind, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CacheError reports a failed Cache Gateway operation.
type CacheError struct {
	Key string
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("flowcache: cache %s for %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// PanicError is a recovered gateway panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("flowcache: gateway panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
