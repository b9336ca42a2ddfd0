package flowcache

import "time"

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the engine calls them while
// holding a key's exclusion slot. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A fetch triggered by a request of the given kind finished.
	// err is nil on success; otherwise it is the *FetchError stored in state.
	FetchFinished(namespace, key string, kind RequestKind, took time.Duration, err error)

	// An awaiting caller joined a resolution already in flight.
	FetchJoined(namespace, key string)

	// A Cache Gateway operation failed.
	// op ∈ {"load", "save", "clear", "save_appending", "save_prepending"}
	CacheFailed(namespace, key, op string, err error)

	// A gateway call panicked; the panic was turned into a *PanicError.
	PanicRecovered(namespace, key string, v any)

	// The number of live subscriptions for a key changed.
	SubscriberCount(namespace, key string, n int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchFinished(string, string, RequestKind, time.Duration, error) {}
func (NopHooks) FetchJoined(string, string)                                      {}
func (NopHooks) CacheFailed(string, string, string, error)                       {}
func (NopHooks) PanicRecovered(string, string, any)                              {}
func (NopHooks) SubscriberCount(string, string, int)                             {}
