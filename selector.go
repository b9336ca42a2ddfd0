package flowcache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/flowcache/internal/routine"
)

// RequestKind selects what a resolution fetches.
type RequestKind uint8

const (
	RequestRefresh RequestKind = iota + 1
	RequestAppend
	RequestPrepend
)

func (k RequestKind) String() string {
	switch k {
	case RequestRefresh:
		return "refresh"
	case RequestAppend:
		return "append"
	case RequestPrepend:
		return "prepend"
	default:
		return fmt.Sprintf("RequestKind(%d)", uint8(k))
	}
}

// Request is one access to a key, as seen by the selector.
type Request struct {
	Kind RequestKind

	// ForceRefresh fetches even when the cached value is valid.
	ForceRefresh bool
	// ClearCacheBeforeFetching clears the cache before the Loading write.
	ClearCacheBeforeFetching bool
	// ClearCacheWhenFetchFails clears the cache before the Error write.
	ClearCacheWhenFetchFails bool
	// ContinueWhenError lets a request fetch again from an Error state
	// (or retry a failed pagination edge).
	ContinueWhenError bool
	// AwaitFetching blocks the caller until the fetch result is published.
	AwaitFetching bool

	// attach runs inside the key's exclusion section right after the
	// decision was made (and its write published), before any later write.
	attach func()
}

// selector decides, per key, between the cached value and the origin and runs
// at most one resolution per key at a time.
type selector[K comparable, V any] struct {
	ns          string
	reg         *Registry[K, V]
	cache       CacheGateway[K, V]
	origin      OriginGateway[K, V]
	needRefresh NeedRefreshFunc[K, V]
	keyString   func(K) string
	log         Logger
	hooks       Hooks
	runner      *routine.Runner
}

// do runs one request for key. With AwaitFetching it returns once the
// resolution it started or joined has published its final write, or when ctx
// is done (the fetch itself keeps going).
//
// A request only joins an in-flight call of its own kind. A request that
// finds a call of another kind in flight (a refresh during an append, say)
// waits for it and then decides for itself; without AwaitFetching that
// happens on a background routine.
func (s *selector[K, V]) do(ctx context.Context, key K, req Request) error {
	for {
		rec := s.reg.record(key)
		rec.slot.Lock()
		unlock := func() {
			if req.attach != nil {
				req.attach()
				req.attach = nil
			}
			rec.slot.Unlock()
		}

		if c := rec.active; c != nil {
			unlock()
			if c.kind != req.Kind {
				if !req.AwaitFetching {
					s.deferRequest(ctx, key, c, req)
					return nil
				}
				if err := c.wait(ctx); err != nil {
					return err
				}
				continue
			}
			if !req.AwaitFetching {
				return nil
			}
			s.hooks.FetchJoined(s.ns, s.keyString(key))
			return c.wait(ctx)
		}

		content, err := s.load(ctx, key)
		if err != nil {
			unlock()
			return err
		}
		rec.prime(content)

		var c *call
		switch req.Kind {
		case RequestRefresh:
			c = s.beginRefresh(ctx, key, rec, content, req)
		case RequestAppend, RequestPrepend:
			c = s.beginPage(ctx, key, rec, content, req)
		default:
			unlock()
			return fmt.Errorf("flowcache: invalid request kind %v", req.Kind)
		}
		unlock()

		if c == nil || !req.AwaitFetching {
			return nil
		}
		return c.wait(ctx)
	}
}

// deferRequest runs req once the in-flight call c of another kind is done.
func (s *selector[K, V]) deferRequest(ctx context.Context, key K, c *call, req Request) {
	fctx := context.WithoutCancel(ctx)
	s.runner.Go("deferred "+req.Kind.String()+" "+s.keyString(key), func() {
		<-c.done
		if err := s.do(fctx, key, req); err != nil {
			s.log.Warn("deferred request failed", Fields{"ns": s.ns, "key": s.keyString(key), "kind": req.Kind.String(), "err": err})
		}
	})
}

// shouldRefresh is the refresh decision table.
func (s *selector[K, V]) shouldRefresh(ctx context.Context, key K, state DataState, content Content[V], req Request) bool {
	var fetch bool
	state.Visit(
		func() { fetch = false }, // someone else is already on it
		func(_, _ AdditionalState) {
			fetch = req.ForceRefresh || !s.valid(ctx, key, content)
		},
		func(error) { fetch = req.ContinueWhenError },
	)
	return fetch
}

// valid reports whether content holds a value that does not need a refresh.
// A panicking NeedRefresh counts as stale.
func (s *selector[K, V]) valid(ctx context.Context, key K, content Content[V]) bool {
	v, ok := content.Get()
	if !ok {
		return false
	}
	if s.needRefresh == nil {
		return true
	}
	var stale bool
	if err := s.guard(key, func() error {
		stale = s.needRefresh(ctx, key, v)
		return nil
	}); err != nil {
		return false
	}
	return !stale
}

// beginRefresh publishes Loading and starts the fetch. Caller holds rec.slot.
func (s *selector[K, V]) beginRefresh(ctx context.Context, key K, rec *record[V], content Content[V], req Request) *call {
	cur := rec.current()
	if !s.shouldRefresh(ctx, key, cur.State, content, req) {
		s.log.Debug("cache decision: keep", Fields{"ns": s.ns, "key": s.keyString(key), "state": cur.State.String(), "force": req.ForceRefresh})
		return nil
	}
	s.log.Debug("cache decision: fetch", Fields{"ns": s.ns, "key": s.keyString(key), "state": cur.State.String(), "force": req.ForceRefresh})

	if req.ClearCacheBeforeFetching {
		if s.clear(ctx, key) == nil {
			content = NotExist[V]()
		}
	}
	rec.write(Snapshot[V]{State: LoadingState(), Content: content})

	c := newCall(RequestRefresh)
	rec.active = c
	fctx := context.WithoutCancel(ctx)
	s.runner.Go("fetch "+s.keyString(key), func() {
		s.refresh(fctx, key, rec, c, req)
	})
	return c
}

func (s *selector[K, V]) refresh(ctx context.Context, key K, rec *record[V], c *call, req Request) {
	start := time.Now()
	var res Fetched[V]
	err := s.guard(key, func() error {
		var ferr error
		res, ferr = s.origin.Fetch(ctx, key)
		return ferr
	})

	rec.slot.Lock()
	if err == nil {
		err = s.save(key, "save", func() error { return s.cache.Save(ctx, key, res.Value) })
	}

	var next Snapshot[V]
	if err == nil {
		next = Snapshot[V]{
			State:   FixedState(AdditionalFixedState(res.NoMoreAppend), AdditionalFixedState(res.NoMorePrepend)),
			Content: Exist(res.Value),
		}
	} else {
		err = &FetchError{Key: s.keyString(key), Kind: RequestRefresh, Err: err}
		s.log.Warn("fetch failed", Fields{"ns": s.ns, "key": s.keyString(key), "err": err})
		content := rec.current().Content
		if req.ClearCacheWhenFetchFails && s.clear(ctx, key) == nil {
			content = NotExist[V]()
		}
		next = Snapshot[V]{State: ErrorState(err), Content: content}
	}
	s.finish(key, rec, c, next, RequestRefresh, time.Since(start), err)
}

// beginPage moves one pagination edge to Loading and starts the page fetch.
// Caller holds rec.slot.
func (s *selector[K, V]) beginPage(ctx context.Context, key K, rec *record[V], content Content[V], req Request) *call {
	cur := rec.current()
	if cur.State.Kind() != KindFixed {
		return nil
	}
	if !pageAllowed(edgeOf(cur.State, req.Kind), req.ContinueWhenError) {
		return nil
	}

	rec.write(Snapshot[V]{State: withEdge(cur.State, req.Kind, AdditionalLoadingState()), Content: content})

	c := newCall(req.Kind)
	rec.active = c
	fctx := context.WithoutCancel(ctx)
	s.runner.Go(req.Kind.String()+" "+s.keyString(key), func() {
		s.page(fctx, key, rec, c, content, req.Kind)
	})
	return c
}

func (s *selector[K, V]) page(ctx context.Context, key K, rec *record[V], c *call, cached Content[V], kind RequestKind) {
	start := time.Now()
	var pg Page[V]
	err := s.guard(key, func() error {
		var ferr error
		if kind == RequestAppend {
			pg, ferr = s.origin.FetchAppending(ctx, key, cached)
		} else {
			pg, ferr = s.origin.FetchPrepending(ctx, key, cached)
		}
		return ferr
	})

	rec.slot.Lock()
	if err == nil {
		op := "save_appending"
		if kind == RequestPrepend {
			op = "save_prepending"
		}
		err = s.save(key, op, func() error {
			if kind == RequestAppend {
				return s.cache.SaveAppending(ctx, key, cached, pg.Value)
			}
			return s.cache.SavePrepending(ctx, key, cached, pg.Value)
		})
	}

	cur := rec.current()
	next := cur
	if err == nil {
		merged, lerr := s.load(ctx, key)
		if lerr != nil {
			err = lerr
		} else {
			next.Content = merged
		}
	}

	var edge AdditionalState
	if err == nil {
		edge = AdditionalFixedState(pg.NoMoreData)
	} else {
		err = &FetchError{Key: s.keyString(key), Kind: kind, Err: err}
		s.log.Warn("page fetch failed", Fields{"ns": s.ns, "key": s.keyString(key), "kind": kind.String(), "err": err})
		edge = AdditionalErrorState(err)
	}
	if cur.State.Kind() == KindFixed {
		next.State = withEdge(cur.State, kind, edge)
	}
	s.finish(key, rec, c, next, kind, time.Since(start), err)
}

// finish publishes the final write of a resolution and releases the key.
// Caller holds rec.slot; finish releases it.
func (s *selector[K, V]) finish(key K, rec *record[V], c *call, next Snapshot[V], kind RequestKind, took time.Duration, err error) {
	rec.write(next)
	rec.active = nil
	rec.slot.Unlock()
	c.finish()
	s.hooks.FetchFinished(s.ns, s.keyString(key), kind, took, err)
}

// update replaces the cached value (or clears it) and publishes
// Fixed(Fixed(false), Fixed(false)) without contacting the origin.
func (s *selector[K, V]) update(ctx context.Context, key K, content Content[V]) error {
	rec := s.reg.record(key)
	rec.slot.Lock()
	defer rec.slot.Unlock()

	var err error
	if v, ok := content.Get(); ok {
		err = s.save(key, "save", func() error { return s.cache.Save(ctx, key, v) })
	} else {
		err = s.clear(ctx, key)
	}
	if err != nil {
		return err
	}
	rec.primed = true
	rec.write(Snapshot[V]{State: initialState(), Content: content})
	return nil
}

// load reads the cached value. Caller holds the key's slot.
func (s *selector[K, V]) load(ctx context.Context, key K) (Content[V], error) {
	var (
		v  V
		ok bool
	)
	err := s.guard(key, func() error {
		var lerr error
		v, ok, lerr = s.cache.Load(ctx, key)
		return lerr
	})
	if err != nil {
		return NotExist[V](), s.cacheFailed(key, "load", err)
	}
	if !ok {
		return NotExist[V](), nil
	}
	return Exist(v), nil
}

func (s *selector[K, V]) save(key K, op string, fn func() error) error {
	if err := s.guard(key, fn); err != nil {
		return s.cacheFailed(key, op, err)
	}
	return nil
}

func (s *selector[K, V]) clear(ctx context.Context, key K) error {
	if err := s.guard(key, func() error { return s.cache.Clear(ctx, key) }); err != nil {
		return s.cacheFailed(key, "clear", err)
	}
	return nil
}

func (s *selector[K, V]) cacheFailed(key K, op string, err error) error {
	ks := s.keyString(key)
	s.log.Error("cache gateway failed", Fields{"ns": s.ns, "key": ks, "op": op, "err": err})
	s.hooks.CacheFailed(s.ns, ks, op, err)
	return &CacheError{Key: ks, Op: op, Err: err}
}

// guard runs a gateway call and turns a panic into a *PanicError.
func (s *selector[K, V]) guard(key K, fn func() error) error {
	var err error
	v, stack, panicked := routine.Call(func() { err = fn() })
	if !panicked {
		return err
	}
	ks := s.keyString(key)
	s.log.Error("gateway panicked", Fields{"ns": s.ns, "key": ks, "panic": v, "stack": string(stack)})
	s.hooks.PanicRecovered(s.ns, ks, v)
	return &PanicError{Value: v, Stack: stack}
}
