package flowcache

import (
	"context"
	"sync"

	"github.com/smallnest/chanx"
)

// subscriberBuffer is the initial capacity of each subscriber's buffer.
// Buffers grow without bound, so a slow reader never blocks writers.
const subscriberBuffer = 4

// Registry holds the per-key records: the current Snapshot, the streams
// attached to it, and the key's exclusion slot used by the selector.
//
// A Registry is constructed once and may be shared by several stores of the
// same key/value types (Options.Registry). Records are created lazily and
// live until Remove.
type Registry[K comparable, V any] struct {
	mu      sync.Mutex
	records map[K]*record[V]
}

type record[V any] struct {
	// slot is the key-scoped exclusion section: held across
	// read -> decide -> write, never across origin I/O.
	slot   sync.Mutex
	active *call // guarded by slot
	primed bool  // guarded by slot; content was set from the cache or an update

	pubMu sync.Mutex
	cur   Snapshot[V]
	subs  map[*chanx.UnboundedChan[Snapshot[V]]]context.CancelFunc
}

// call is one in-flight resolution of kind. done is closed when its final
// write has been published.
type call struct {
	kind RequestKind
	done chan struct{}
}

func newCall(kind RequestKind) *call { return &call{kind: kind, done: make(chan struct{})} }

func (c *call) finish() { close(c.done) }

func (c *call) wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{records: make(map[K]*record[V])}
}

func (r *Registry[K, V]) record(key K) *record[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		rec = &record[V]{
			cur:  Snapshot[V]{State: initialState()},
			subs: make(map[*chanx.UnboundedChan[Snapshot[V]]]context.CancelFunc),
		}
		r.records[key] = rec
	}
	return rec
}

// Current returns the key's record at this instant.
func (r *Registry[K, V]) Current(key K) Snapshot[V] {
	return r.record(key).current()
}

// Write atomically replaces the key's record and delivers it to every stream.
func (r *Registry[K, V]) Write(key K, s Snapshot[V]) {
	r.record(key).write(s)
}

// Stream attaches a new subscriber. The returned channel yields the current
// record first, then every later write in order. cancel detaches it and
// closes the channel; snapshots not yet read are discarded. It is idempotent.
func (r *Registry[K, V]) Stream(key K) (<-chan Snapshot[V], func()) {
	return r.record(key).stream()
}

// Subscribers returns the number of streams attached to key.
func (r *Registry[K, V]) Subscribers(key K) int {
	r.mu.Lock()
	rec, ok := r.records[key]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	rec.pubMu.Lock()
	defer rec.pubMu.Unlock()
	return len(rec.subs)
}

// Remove drops the key's record and ends all of its streams.
// A later access starts from a fresh default record.
func (r *Registry[K, V]) Remove(key K) {
	r.mu.Lock()
	rec, ok := r.records[key]
	delete(r.records, key)
	r.mu.Unlock()
	if ok {
		rec.closeAll()
	}
}

// Len returns the number of live records.
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (rec *record[V]) current() Snapshot[V] {
	rec.pubMu.Lock()
	defer rec.pubMu.Unlock()
	return rec.cur
}

func (rec *record[V]) write(s Snapshot[V]) {
	rec.pubMu.Lock()
	defer rec.pubMu.Unlock()
	rec.cur = s
	for ch := range rec.subs {
		ch.In <- s // unbounded: never blocks
	}
}

// prime sets the content of a record the first time the selector uses it,
// without notifying streams. Later loads reach streams only with the next
// write. Caller holds rec.slot.
func (rec *record[V]) prime(c Content[V]) {
	if rec.primed {
		return
	}
	rec.pubMu.Lock()
	rec.cur.Content = c
	rec.pubMu.Unlock()
	rec.primed = true
}

func (rec *record[V]) stream() (<-chan Snapshot[V], func()) {
	ctx, stop := context.WithCancel(context.Background())
	ch := chanx.NewUnboundedChan[Snapshot[V]](ctx, subscriberBuffer)

	rec.pubMu.Lock()
	ch.In <- rec.cur
	rec.subs[ch] = stop
	rec.pubMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			rec.pubMu.Lock()
			defer rec.pubMu.Unlock()
			rec.detach(ch)
		})
	}
	return ch.Out, cancel
}

// detach ends one stream. The buffer goroutine exits even when the reader
// is gone. Caller holds rec.pubMu.
func (rec *record[V]) detach(ch *chanx.UnboundedChan[Snapshot[V]]) {
	stop, ok := rec.subs[ch]
	if !ok {
		return
	}
	delete(rec.subs, ch)
	stop()
	close(ch.In)
}

func (rec *record[V]) closeAll() {
	rec.pubMu.Lock()
	defer rec.pubMu.Unlock()
	for ch := range rec.subs {
		rec.detach(ch)
	}
}
