package flowcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/flowcache/internal/routine"
)

type store[K comparable, V any] struct {
	sel    *selector[K, V]
	reg    *Registry[K, V]
	closed atomic.Bool

	// live subscriptions, ended by Close
	subsMu sync.Mutex
	subs   map[*Subscription[V]]struct{}
}

func newStore[K comparable, V any](opts Options[K, V]) (*store[K, V], error) {
	if opts.Namespace == "" {
		return nil, errors.New("flowcache: namespace is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("flowcache: cache gateway is required")
	}
	if opts.Origin == nil {
		return nil, errors.New("flowcache: origin gateway is required")
	}

	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry[K, V]()
	}
	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})
	keyString := opts.KeyString
	if keyString == nil {
		keyString = sprintKey[K]
	}

	s := &store[K, V]{
		reg:  reg,
		subs: make(map[*Subscription[V]]struct{}),
	}
	s.sel = &selector[K, V]{
		ns:          opts.Namespace,
		reg:         reg,
		cache:       opts.Cache,
		origin:      opts.Origin,
		needRefresh: opts.NeedRefresh,
		keyString:   keyString,
		log:         log,
		hooks:       hooks,
		runner: routine.New(func(name string, v any, stack []byte) {
			log.Error("background routine panicked", Fields{"ns": opts.Namespace, "routine": name, "panic": v, "stack": string(stack)})
		}),
	}
	return s, nil
}

func (s *store[K, V]) Flow(key K) Flow[V] {
	return &flow[K, V]{s: s, key: key}
}

func (s *store[K, V]) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.subsMu.Lock()
	subs := make([]*Subscription[V], 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()
	for _, sub := range subs {
		sub.Stop()
	}
	return s.sel.runner.Wait(ctx)
}

func (s *store[K, V]) track(sub *Subscription[V]) {
	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()
}

func (s *store[K, V]) untrack(sub *Subscription[V]) {
	s.subsMu.Lock()
	delete(s.subs, sub)
	s.subsMu.Unlock()
}

type flow[K comparable, V any] struct {
	s   *store[K, V]
	key K
}

var _ Flow[int] = (*flow[string, int])(nil)

func (f *flow[K, V]) do(ctx context.Context, req Request) error {
	if f.s.closed.Load() {
		return ErrClosed
	}
	return f.s.sel.do(ctx, f.key, req)
}

func (f *flow[K, V]) Subscribe() *Subscription[V] {
	return &Subscription[V]{f: f}
}

func (f *flow[K, V]) Get(ctx context.Context, from GetFrom) (V, error) {
	var zero V
	if f.s.closed.Load() {
		return zero, ErrClosed
	}
	sel := f.s.sel

	fallback, ok, err := f.cached(ctx)
	if from == FromCache {
		switch {
		case err != nil:
			return zero, err
		case !ok:
			return zero, ErrNotFound
		}
		return fallback, nil
	}

	err = f.do(ctx, Request{
		Kind:                     RequestRefresh,
		ForceRefresh:             from == FromOrigin,
		ClearCacheBeforeFetching: true,
		ClearCacheWhenFetchFails: true,
		ContinueWhenError:        true,
		AwaitFetching:            true,
	})
	if err != nil {
		return zero, err
	}

	snap := f.s.reg.Current(f.key)
	if sel.valid(ctx, f.key, snap.Content) {
		v, _ := snap.Content.Get()
		return v, nil
	}
	// A value that was valid before a failed mix fetch is still served.
	if from == FromMix && ok {
		return fallback, nil
	}
	if cause := snap.State.Err(); cause != nil {
		return zero, cause
	}
	return zero, ErrNotFound
}

// cached reads the Cache Gateway and reports whether it holds a valid value.
func (f *flow[K, V]) cached(ctx context.Context) (V, bool, error) {
	sel := f.s.sel
	rec := f.s.reg.record(f.key)
	rec.slot.Lock()
	content, err := sel.load(ctx, f.key)
	rec.slot.Unlock()
	if err != nil || !sel.valid(ctx, f.key, content) {
		var zero V
		return zero, false, err
	}
	v, _ := content.Get()
	return v, true, nil
}

func (f *flow[K, V]) Lookup(ctx context.Context, from GetFrom) (V, bool) {
	v, err := f.Get(ctx, from)
	return v, err == nil
}

func (f *flow[K, V]) Refresh(ctx context.Context, opts RefreshOptions) error {
	return f.do(ctx, Request{
		Kind:                     RequestRefresh,
		ForceRefresh:             true,
		ClearCacheWhenFetchFails: !opts.KeepCacheOnFailure,
		ContinueWhenError:        !opts.StopWhenError,
		AwaitFetching:            true,
	})
}

func (f *flow[K, V]) Validate(ctx context.Context) error {
	return f.do(ctx, Request{
		Kind:                     RequestRefresh,
		ClearCacheBeforeFetching: true,
		ClearCacheWhenFetchFails: true,
		ContinueWhenError:        true,
		AwaitFetching:            true,
	})
}

func (f *flow[K, V]) Update(ctx context.Context, v V) error {
	if f.s.closed.Load() {
		return ErrClosed
	}
	return f.s.sel.update(ctx, f.key, Exist(v))
}

func (f *flow[K, V]) Delete(ctx context.Context) error {
	if f.s.closed.Load() {
		return ErrClosed
	}
	return f.s.sel.update(ctx, f.key, NotExist[V]())
}

func (f *flow[K, V]) RequestAppend(ctx context.Context) error {
	return f.page(ctx, RequestAppend)
}

func (f *flow[K, V]) RequestPrepend(ctx context.Context) error {
	return f.page(ctx, RequestPrepend)
}

func (f *flow[K, V]) page(ctx context.Context, kind RequestKind) error {
	return f.do(ctx, Request{
		Kind:                     kind,
		ClearCacheWhenFetchFails: true,
		ContinueWhenError:        true,
		AwaitFetching:            true,
	})
}

func (f *flow[K, V]) Snapshot() Snapshot[V] {
	return f.s.reg.Current(f.key)
}
