// Package otelhooks records flowcache events as OpenTelemetry metrics.
//
// Keys are never used as attributes; every instrument is labeled by
// namespace (plus request kind or cache op where it applies).
package otelhooks

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/flowcache"
)

const scope = "github.com/unkn0wn-root/flowcache"

type Hooks struct {
	fetchTotal  metric.Int64Counter
	fetchErrors metric.Int64Counter
	joined      metric.Int64Counter
	cacheErrors metric.Int64Counter
	panics      metric.Int64Counter
	duration    metric.Float64Histogram
	subscribers metric.Int64UpDownCounter

	// last reported subscriber count per key, to turn counts into deltas
	mu   sync.Mutex
	subs map[subKey]int
}

type subKey struct{ ns, key string }

var _ flowcache.Hooks = (*Hooks)(nil)

// New registers the instruments on mp. A nil mp uses the global provider.
func New(mp metric.MeterProvider) (*Hooks, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(scope)
	h := &Hooks{subs: make(map[subKey]int)}

	var err error
	if h.fetchTotal, err = meter.Int64Counter(
		"flowcache.fetch.total",
		metric.WithDescription("Origin fetches started by flowcache"),
		metric.WithUnit("{fetch}"),
	); err != nil {
		return nil, err
	}
	if h.fetchErrors, err = meter.Int64Counter(
		"flowcache.fetch.errors",
		metric.WithDescription("Origin fetches that ended in an error state"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if h.joined, err = meter.Int64Counter(
		"flowcache.fetch.joined",
		metric.WithDescription("Callers that waited on a fetch already in flight"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if h.cacheErrors, err = meter.Int64Counter(
		"flowcache.cache.errors",
		metric.WithDescription("Failed cache gateway operations"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if h.panics, err = meter.Int64Counter(
		"flowcache.panics",
		metric.WithDescription("Recovered gateway panics"),
		metric.WithUnit("{panic}"),
	); err != nil {
		return nil, err
	}
	if h.duration, err = meter.Float64Histogram(
		"flowcache.fetch.duration_ms",
		metric.WithDescription("Origin fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if h.subscribers, err = meter.Int64UpDownCounter(
		"flowcache.subscribers",
		metric.WithDescription("Live subscriptions"),
		metric.WithUnit("{subscription}"),
	); err != nil {
		return nil, err
	}
	return h, nil
}

func nsAttr(ns string) attribute.KeyValue { return attribute.String("flowcache.namespace", ns) }

func (h *Hooks) FetchFinished(ns, _ string, kind flowcache.RequestKind, took time.Duration, err error) {
	ctx := context.Background()
	opt := metric.WithAttributes(nsAttr(ns), attribute.String("flowcache.kind", kind.String()))
	h.fetchTotal.Add(ctx, 1, opt)
	if err != nil {
		h.fetchErrors.Add(ctx, 1, opt)
	}
	h.duration.Record(ctx, float64(took.Microseconds())/1000, opt)
}

func (h *Hooks) FetchJoined(ns, _ string) {
	h.joined.Add(context.Background(), 1, metric.WithAttributes(nsAttr(ns)))
}

func (h *Hooks) CacheFailed(ns, _, op string, _ error) {
	h.cacheErrors.Add(context.Background(), 1,
		metric.WithAttributes(nsAttr(ns), attribute.String("flowcache.op", op)))
}

func (h *Hooks) PanicRecovered(ns, _ string, _ any) {
	h.panics.Add(context.Background(), 1, metric.WithAttributes(nsAttr(ns)))
}

func (h *Hooks) SubscriberCount(ns, key string, n int) {
	k := subKey{ns, key}
	h.mu.Lock()
	delta := n - h.subs[k]
	if n == 0 {
		delete(h.subs, k)
	} else {
		h.subs[k] = n
	}
	h.mu.Unlock()
	if delta != 0 {
		h.subscribers.Add(context.Background(), int64(delta), metric.WithAttributes(nsAttr(ns)))
	}
}
