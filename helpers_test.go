package flowcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// memCache is an in-memory CacheGateway with switchable failures.
type memCache[K comparable, V any] struct {
	mu      sync.Mutex
	m       map[K]V
	loadErr error
	saveErr error

	// merge builds the stored value for paging saves.
	merge func(cached Content[V], page V, appending bool) V

	saves  atomic.Int32
	clears atomic.Int32
}

var _ CacheGateway[string, string] = (*memCache[string, string])(nil)

func newMemCache[K comparable, V any]() *memCache[K, V] {
	return &memCache[K, V]{m: make(map[K]V)}
}

func (c *memCache[K, V]) Load(_ context.Context, key K) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		var zero V
		return zero, false, c.loadErr
	}
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCache[K, V]) Save(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saves.Add(1)
	c.m[key] = value
	return nil
}

func (c *memCache[K, V]) Clear(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears.Add(1)
	delete(c.m, key)
	return nil
}

func (c *memCache[K, V]) SaveAppending(_ context.Context, key K, cached Content[V], page V) error {
	return c.savePage(key, cached, page, true)
}

func (c *memCache[K, V]) SavePrepending(_ context.Context, key K, cached Content[V], page V) error {
	return c.savePage(key, cached, page, false)
}

func (c *memCache[K, V]) savePage(key K, cached Content[V], page V, appending bool) error {
	if c.merge == nil {
		return ErrPagingUnsupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	c.m[key] = c.merge(cached, page, appending)
	return nil
}

func (c *memCache[K, V]) put(key K, v V) {
	c.mu.Lock()
	c.m[key] = v
	c.mu.Unlock()
}

func (c *memCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

// fakeOrigin counts calls and optionally blocks each fetch on gate.
type fakeOrigin[K comparable, V any] struct {
	fetch   func(key K) (Fetched[V], error)
	appendF func(key K, cached Content[V]) (Page[V], error)
	prepend func(key K, cached Content[V]) (Page[V], error)
	gate    chan struct{} // nil => no blocking
	started chan struct{} // receives one value per started fetch, if non-nil

	calls       atomic.Int32
	appendCalls atomic.Int32
}

var _ OriginGateway[string, string] = (*fakeOrigin[string, string])(nil)

func (o *fakeOrigin[K, V]) wait() {
	if o.started != nil {
		o.started <- struct{}{}
	}
	if o.gate != nil {
		<-o.gate
	}
}

func (o *fakeOrigin[K, V]) Fetch(_ context.Context, key K) (Fetched[V], error) {
	o.calls.Add(1)
	o.wait()
	return o.fetch(key)
}

func (o *fakeOrigin[K, V]) FetchAppending(_ context.Context, key K, cached Content[V]) (Page[V], error) {
	o.appendCalls.Add(1)
	o.wait()
	if o.appendF == nil {
		return Page[V]{}, ErrPagingUnsupported
	}
	return o.appendF(key, cached)
}

func (o *fakeOrigin[K, V]) FetchPrepending(_ context.Context, key K, cached Content[V]) (Page[V], error) {
	o.wait()
	if o.prepend == nil {
		return Page[V]{}, ErrPagingUnsupported
	}
	return o.prepend(key, cached)
}

var errOrigin = errors.New("origin down")

// Values used by the decision tests. "invalid" is always stale.
const (
	validData   = "valid"
	invalidData = "invalid"
	fetchedData = "fetched"
)

func needRefresh(_ context.Context, _ string, v string) bool { return v == invalidData }

func succeed(string) (Fetched[string], error) { return Fetched[string]{Value: fetchedData}, nil }

func fail(string) (Fetched[string], error) { return Fetched[string]{}, errOrigin }

type testEnv struct {
	st     *store[string, string]
	reg    *Registry[string, string]
	cache  *memCache[string, string]
	origin *fakeOrigin[string, string]
}

func newTestEnv(t *testing.T, fetch func(string) (Fetched[string], error), optsOpt func(*Options[string, string])) *testEnv {
	t.Helper()
	env := &testEnv{
		reg:    NewRegistry[string, string](),
		cache:  newMemCache[string, string](),
		origin: &fakeOrigin[string, string]{fetch: fetch},
	}
	opts := Options[string, string]{
		Namespace:   "test",
		Cache:       env.cache,
		Origin:      env.origin,
		NeedRefresh: needRefresh,
		Registry:    env.reg,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	st, err := newStore[string, string](opts)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	env.st = st
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return env
}

// next receives one snapshot or fails the test after a timeout.
func next[V any](t *testing.T, ch <-chan Snapshot[V]) Snapshot[V] {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatalf("stream closed")
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return Snapshot[V]{}
}

// quiet asserts that nothing arrives on ch for a short while.
func quiet[V any](t *testing.T, ch <-chan Snapshot[V]) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if ok {
			t.Fatalf("unexpected snapshot: %v", s)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

// short renders a snapshot as "<Kind> <Content>" for history comparisons.
func short[V any](s Snapshot[V]) string {
	return s.State.Kind().String() + " " + s.Content.String()
}

func histories[V any](t *testing.T, ch <-chan Snapshot[V], n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, short(next(t, ch)))
	}
	return out
}
