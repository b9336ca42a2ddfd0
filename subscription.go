package flowcache

import (
	"context"
	"sync"
)

// Subscription is a two-phase handle on a key's snapshot stream.
// Subscribe creates it inactive; Start activates it exactly once.
type Subscription[V any] struct {
	f interface {
		activate(ctx context.Context, sub *Subscription[V]) (<-chan Snapshot[V], func(), error)
		deactivate(sub *Subscription[V])
	}

	startOnce sync.Once
	stopOnce  sync.Once
	out       <-chan Snapshot[V]
	err       error
	cancel    func()
	stopped   chan struct{}
}

// Start triggers the initial decision for the key (fetching when the cache is
// missing or stale, without waiting for it) and returns the stream. The first
// snapshot on the stream already reflects that decision; every later write
// follows in order. The channel is closed after Stop, when ctx is done, or
// when the store closes.
//
// Calling Start again returns the same channel and error. Start after a Stop
// that came first returns ErrStopped and no channel.
func (s *Subscription[V]) Start(ctx context.Context) (<-chan Snapshot[V], error) {
	s.startOnce.Do(func() {
		s.stopped = make(chan struct{})
		s.out, s.cancel, s.err = s.f.activate(ctx, s)
		if s.cancel == nil {
			return
		}
		go func() {
			select {
			case <-ctx.Done():
				s.Stop()
			case <-s.stopped:
			}
		}()
	})
	return s.out, s.err
}

// Stop ends the subscription. It is idempotent and safe before Start.
func (s *Subscription[V]) Stop() {
	s.startOnce.Do(func() { s.err = ErrStopped })
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		close(s.stopped)
		s.f.deactivate(s)
	})
}

func (f *flow[K, V]) activate(ctx context.Context, sub *Subscription[V]) (<-chan Snapshot[V], func(), error) {
	if f.s.closed.Load() {
		return nil, nil, ErrClosed
	}
	var (
		out    <-chan Snapshot[V]
		cancel func()
	)
	err := f.s.sel.do(ctx, f.key, Request{
		Kind:                     RequestRefresh,
		ClearCacheBeforeFetching: true,
		ClearCacheWhenFetchFails: true,
		ContinueWhenError:        true,
		attach: func() {
			out, cancel = f.s.reg.Stream(f.key)
		},
	})
	if cancel == nil {
		// the decision never reached the key
		return nil, nil, err
	}
	f.s.track(sub)
	f.subscriberCount()
	return out, cancel, err
}

func (f *flow[K, V]) deactivate(sub *Subscription[V]) {
	f.s.untrack(sub)
	f.subscriberCount()
}

func (f *flow[K, V]) subscriberCount() {
	sel := f.s.sel
	sel.hooks.SubscriberCount(sel.ns, sel.keyString(f.key), f.s.reg.Subscribers(f.key))
}
