package flowcache

import (
	"context"
	"fmt"
)

// GetFrom selects where Flow.Get takes its value from.
type GetFrom uint8

const (
	// FromMix returns the cached value when it is valid and fetches otherwise.
	FromMix GetFrom = iota
	// FromCache reads the Cache Gateway only, never the origin.
	FromCache
	// FromOrigin always fetches.
	FromOrigin
)

func (f GetFrom) String() string {
	switch f {
	case FromMix:
		return "mix"
	case FromCache:
		return "cache"
	case FromOrigin:
		return "origin"
	default:
		return fmt.Sprintf("GetFrom(%d)", uint8(f))
	}
}

// Store keeps cached values for many keys synchronized with an origin.
// K is the caller's key type, V the cached value type.
type Store[K comparable, V any] interface {
	// Flow returns the handle for one key. Handles are cheap and stateless;
	// all state lives in the Registry.
	Flow(key K) Flow[V]

	// Close waits for in-flight fetches (bounded by ctx) and ends every
	// subscription. Later operations return ErrClosed.
	Close(ctx context.Context) error
}

// Flow is the per-key facade.
type Flow[V any] interface {
	// Subscribe returns an inactive subscription. Start it to trigger the
	// initial decision and receive snapshots.
	Subscribe() *Subscription[V]

	// Get returns a fresh value or an error: the captured fetch cause when
	// the last fetch failed, ErrNotFound otherwise.
	Get(ctx context.Context, from GetFrom) (V, error)

	// Lookup is Get without the error: ok=false whenever Get would fail.
	Lookup(ctx context.Context, from GetFrom) (V, bool)

	// Refresh always fetches, awaiting the result. The fetch outcome is
	// published to subscribers, not returned.
	Refresh(ctx context.Context, opts RefreshOptions) error

	// Validate fetches only when the cached value is missing or stale.
	Validate(ctx context.Context) error

	// Update replaces the cached value without contacting the origin.
	Update(ctx context.Context, v V) error

	// Delete clears the cached value without contacting the origin.
	Delete(ctx context.Context) error

	// RequestAppend and RequestPrepend fetch one more page in that direction.
	RequestAppend(ctx context.Context) error
	RequestPrepend(ctx context.Context) error

	// Snapshot is the current record for the key.
	Snapshot() Snapshot[V]
}

// RefreshOptions tune Flow.Refresh. The zero value clears the cache when the
// fetch fails and lets the refresh run from an Error state.
type RefreshOptions struct {
	KeepCacheOnFailure bool
	StopWhenError      bool
}

// Options configure a Store.
// Namespace, Cache and Origin are required; others have sensible defaults.
type Options[K comparable, V any] struct {
	// Required
	Namespace string // logical name used in logs and hooks. e.g. "user", "repos"
	Cache     CacheGateway[K, V]
	Origin    OriginGateway[K, V]

	NeedRefresh NeedRefreshFunc[K, V] // nil => a present value is never stale
	Registry    *Registry[K, V]       // nil => a private registry
	Logger      Logger                // nil => NopLogger
	Hooks       Hooks                 // nil => NopHooks
	KeyString   func(K) string        // nil => fmt.Sprint
}

func New[K comparable, V any](opts Options[K, V]) (Store[K, V], error) {
	return newStore[K, V](opts)
}
