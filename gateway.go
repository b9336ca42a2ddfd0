package flowcache

import "context"

// CacheGateway is the persistence contract the engine reads and writes.
// It must be safe for concurrent use across keys; the engine never calls it
// concurrently for the same key from inside an exclusion section, but Load
// may run concurrently with a background fetch's Save.
type CacheGateway[K comparable, V any] interface {
	// Load returns (value, true, nil) on hit and (zero, false, nil) on miss.
	Load(ctx context.Context, key K) (V, bool, error)
	Save(ctx context.Context, key K, value V) error
	// Clear removes the cached value. Idempotent.
	Clear(ctx context.Context, key K) error
	// SaveAppending stores cached+page with page after the existing items.
	SaveAppending(ctx context.Context, key K, cached Content[V], page V) error
	// SavePrepending stores page+cached with page before the existing items.
	SavePrepending(ctx context.Context, key K, cached Content[V], page V) error
}

// Fetched is the result of a full fetch from the origin. The NoMore flags seed
// the pagination edges of the resulting Fixed state.
type Fetched[V any] struct {
	Value         V
	NoMoreAppend  bool
	NoMorePrepend bool
}

// Page is one additional page fetched for a pagination edge.
type Page[V any] struct {
	Value      V
	NoMoreData bool
}

// OriginGateway is the remote source of truth. Any error it returns is
// captured into state as a *FetchError; the engine never retries.
type OriginGateway[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (Fetched[V], error)
	FetchAppending(ctx context.Context, key K, cached Content[V]) (Page[V], error)
	FetchPrepending(ctx context.Context, key K, cached Content[V]) (Page[V], error)
}

// NeedRefreshFunc reports whether a present cached value is stale.
type NeedRefreshFunc[K comparable, V any] func(ctx context.Context, key K, cached V) bool

// CacheFuncs adapts plain functions to CacheGateway. LoadFunc, SaveFunc and
// ClearFunc are required; nil paging funcs return ErrPagingUnsupported.
type CacheFuncs[K comparable, V any] struct {
	LoadFunc           func(ctx context.Context, key K) (V, bool, error)
	SaveFunc           func(ctx context.Context, key K, value V) error
	ClearFunc          func(ctx context.Context, key K) error
	SaveAppendingFunc  func(ctx context.Context, key K, cached Content[V], page V) error
	SavePrependingFunc func(ctx context.Context, key K, cached Content[V], page V) error
}

var _ CacheGateway[string, int] = CacheFuncs[string, int]{}

func (f CacheFuncs[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	return f.LoadFunc(ctx, key)
}

func (f CacheFuncs[K, V]) Save(ctx context.Context, key K, value V) error {
	return f.SaveFunc(ctx, key, value)
}

func (f CacheFuncs[K, V]) Clear(ctx context.Context, key K) error {
	return f.ClearFunc(ctx, key)
}

func (f CacheFuncs[K, V]) SaveAppending(ctx context.Context, key K, cached Content[V], page V) error {
	if f.SaveAppendingFunc == nil {
		return ErrPagingUnsupported
	}
	return f.SaveAppendingFunc(ctx, key, cached, page)
}

func (f CacheFuncs[K, V]) SavePrepending(ctx context.Context, key K, cached Content[V], page V) error {
	if f.SavePrependingFunc == nil {
		return ErrPagingUnsupported
	}
	return f.SavePrependingFunc(ctx, key, cached, page)
}

// OriginFuncs adapts plain functions to OriginGateway. FetchFunc is required.
type OriginFuncs[K comparable, V any] struct {
	FetchFunc           func(ctx context.Context, key K) (Fetched[V], error)
	FetchAppendingFunc  func(ctx context.Context, key K, cached Content[V]) (Page[V], error)
	FetchPrependingFunc func(ctx context.Context, key K, cached Content[V]) (Page[V], error)
}

var _ OriginGateway[string, int] = OriginFuncs[string, int]{}

func (f OriginFuncs[K, V]) Fetch(ctx context.Context, key K) (Fetched[V], error) {
	return f.FetchFunc(ctx, key)
}

func (f OriginFuncs[K, V]) FetchAppending(ctx context.Context, key K, cached Content[V]) (Page[V], error) {
	if f.FetchAppendingFunc == nil {
		return Page[V]{}, ErrPagingUnsupported
	}
	return f.FetchAppendingFunc(ctx, key, cached)
}

func (f OriginFuncs[K, V]) FetchPrepending(ctx context.Context, key K, cached Content[V]) (Page[V], error) {
	if f.FetchPrependingFunc == nil {
		return Page[V]{}, ErrPagingUnsupported
	}
	return f.FetchPrependingFunc(ctx, key, cached)
}
