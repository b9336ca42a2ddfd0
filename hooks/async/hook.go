// Package asynchook moves hook calls off the caller's goroutine.
//
// flowcache calls Hooks while it holds a key's exclusion slot, so a sink that
// logs, exports or locks should be wrapped:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := flowcache.New(flowcache.Options[string, User]{
//	    Namespace: "user",
//	    Cache:     cache,
//	    Origin:    origin,
//	    Hooks:     hooks,
//	})
//
// Events are dropped when the queue is full. Dropped counts them.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/flowcache"
)

type Hooks struct {
	inner   flowcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends on a closed queue
	closed  bool
	dropped atomic.Uint64
}

var _ flowcache.Hooks = (*Hooks)(nil)

func New(inner flowcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns the number of events lost to a full or closed queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchFinished(ns, key string, kind flowcache.RequestKind, took time.Duration, err error) {
	h.try(func() { h.inner.FetchFinished(ns, key, kind, took, err) })
}

func (h *Hooks) FetchJoined(ns, key string) { h.try(func() { h.inner.FetchJoined(ns, key) }) }

func (h *Hooks) CacheFailed(ns, key, op string, err error) {
	h.try(func() { h.inner.CacheFailed(ns, key, op, err) })
}

func (h *Hooks) PanicRecovered(ns, key string, v any) {
	h.try(func() { h.inner.PanicRecovered(ns, key, v) })
}

func (h *Hooks) SubscriberCount(ns, key string, n int) {
	h.try(func() { h.inner.SubscriberCount(ns, key, n) })
}
