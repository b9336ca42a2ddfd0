// Package kvcache is a flowcache.CacheGateway over a byte provider.
//
// Values are encoded with a codec.Codec and framed together with the key's
// generation and the time they were saved (see internal/wire). Clear bumps
// the generation before deleting, so a replica that still holds the old bytes
// treats them as a miss on its next Load once generations are shared
// (genstore.Redis). Frames that fail to decode, carry an old generation, or
// hold an undecodable payload are deleted on read.
package kvcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/flowcache"
	"github.com/unkn0wn-root/flowcache/codec"
	"github.com/unkn0wn-root/flowcache/genstore"
	"github.com/unkn0wn-root/flowcache/internal/wire"
	pr "github.com/unkn0wn-root/flowcache/provider"
)

const (
	defaultTTL          = 10 * time.Minute
	defaultGenRetention = 30 * 24 * time.Hour
	defaultGenSweep     = time.Hour
)

// MergeFunc builds the value stored after a page was fetched.
type MergeFunc[V any] func(cached flowcache.Content[V], page V) V

// Merger holds the merges used by SaveAppending and SavePrepending.
// A nil func makes the matching call fail with flowcache.ErrPagingUnsupported.
type Merger[V any] struct {
	Append  MergeFunc[V]
	Prepend MergeFunc[V]
}

// SliceMerge appends and prepends pages of slice values.
func SliceMerge[E any]() Merger[[]E] {
	return Merger[[]E]{Append: flowcache.AppendPage[E], Prepend: flowcache.PrependPage[E]}
}

// SetCostFunc computes the cost passed to the provider for a framed entry.
type SetCostFunc func(storageKey string, raw []byte) int64

type Options[K comparable, V any] struct {
	Namespace string         // required; isolates keys per flow
	Provider  pr.Provider    // required
	Codec     codec.Codec[V] // required

	// GenStore holds generations. Nil => genstore.Local with hourly cleanup.
	// Use genstore.Redis when several processes share the provider.
	GenStore genstore.Store

	// TTL passed to the provider on every write. 0 => 10m; < 0 => no expiry.
	TTL time.Duration
	// MaxAge drives NeedRefresh. 0 disables age-based refresh.
	MaxAge time.Duration

	Merge Merger[V]

	// Key renders a key into its storage form. Nil => fmt.Sprint.
	Key func(K) string

	ComputeSetCost SetCostFunc // nil => 0 (provider default)
	Logger         flowcache.Logger
	Hooks          Hooks
}

// Cache implements flowcache.CacheGateway.
type Cache[K comparable, V any] struct {
	ns       string
	provider pr.Provider
	codec    codec.Codec[V]
	gen      genstore.Store
	ownsGen  bool
	ttl      time.Duration
	maxAge   time.Duration
	merge    Merger[V]
	key      func(K) string
	cost     SetCostFunc
	log      flowcache.Logger
	hooks    Hooks
	now      func() time.Time

	loads singleflight.Group
}

var _ flowcache.CacheGateway[string, int] = (*Cache[string, int])(nil)

type loaded[V any] struct {
	v  V
	ok bool
}

func New[K comparable, V any](opts Options[K, V]) (*Cache[K, V], error) {
	if opts.Namespace == "" {
		return nil, errors.New("kvcache: namespace is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("kvcache: provider is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("kvcache: codec is required")
	}

	c := &Cache[K, V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		gen:      opts.GenStore,
		maxAge:   opts.MaxAge,
		merge:    opts.Merge,
		key:      opts.Key,
		cost:     opts.ComputeSetCost,
		log:      opts.Logger,
		hooks:    opts.Hooks,
		now:      time.Now,
	}
	if c.gen == nil {
		c.gen = genstore.NewLocal(defaultGenSweep, defaultGenRetention)
		c.ownsGen = true
	}
	switch {
	case opts.TTL == 0:
		c.ttl = defaultTTL
	case opts.TTL > 0:
		c.ttl = opts.TTL
	}
	if c.key == nil {
		c.key = func(k K) string { return fmt.Sprint(k) }
	}
	if c.cost == nil {
		c.cost = func(string, []byte) int64 { return 0 }
	}
	if c.log == nil {
		c.log = flowcache.NopLogger{}
	}
	if c.hooks == nil {
		c.hooks = NopHooks{}
	}
	return c, nil
}

// StorageKey returns the provider key used for key.
func (c *Cache[K, V]) StorageKey(key K) string {
	return "flow:" + c.ns + ":" + c.key(key)
}

func (c *Cache[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	sk := c.StorageKey(key)
	res, err, _ := c.loads.Do(sk, func() (any, error) {
		e, ok, err := c.entry(ctx, sk)
		if err != nil || !ok {
			return loaded[V]{}, err
		}
		v, err := c.codec.Decode(e.Payload)
		if err != nil {
			c.heal(ctx, sk, "decode")
			return loaded[V]{}, nil
		}
		return loaded[V]{v: v, ok: true}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	l := res.(loaded[V])
	return l.v, l.ok, nil
}

// entry reads and validates the frame stored under sk.
func (c *Cache[K, V]) entry(ctx context.Context, sk string) (wire.Entry, bool, error) {
	raw, ok, err := c.provider.Get(ctx, sk)
	if err != nil || !ok {
		return wire.Entry{}, false, err
	}
	e, err := wire.DecodeEntry(raw)
	if err != nil {
		c.heal(ctx, sk, "corrupt")
		return wire.Entry{}, false, nil
	}
	gen, err := c.gen.Snapshot(ctx, sk)
	if err != nil {
		return wire.Entry{}, false, fmt.Errorf("kvcache: generation snapshot: %w", err)
	}
	if e.Gen != gen {
		c.heal(ctx, sk, "gen_mismatch")
		return wire.Entry{}, false, nil
	}
	return e, true, nil
}

func (c *Cache[K, V]) heal(ctx context.Context, sk, reason string) {
	if err := c.provider.Del(ctx, sk); err != nil {
		c.log.Warn("self-heal delete failed", flowcache.Fields{"key": sk, "reason": reason, "err": err})
		return
	}
	c.log.Debug("self-healed entry", flowcache.Fields{"key": sk, "reason": reason})
	c.hooks.SelfHeal(sk, reason)
}

func (c *Cache[K, V]) Save(ctx context.Context, key K, value V) error {
	sk := c.StorageKey(key)
	payload, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("kvcache: encode: %w", err)
	}
	gen, err := c.gen.Snapshot(ctx, sk)
	if err != nil {
		return fmt.Errorf("kvcache: generation snapshot: %w", err)
	}
	raw := wire.EncodeEntry(gen, c.now(), payload)
	ok, err := c.provider.Set(ctx, sk, raw, c.cost(sk, raw), c.ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Debug("provider rejected write", flowcache.Fields{"key": sk})
		c.hooks.SetRejected(sk)
	}
	return nil
}

// Clear invalidates key. A failed delete after a successful bump is only
// logged: the bumped generation already hides the old bytes. It fails only
// when both steps failed.
func (c *Cache[K, V]) Clear(ctx context.Context, key K) error {
	sk := c.StorageKey(key)
	newGen, bumpErr := c.gen.Bump(ctx, sk)
	if bumpErr != nil {
		c.log.Error("generation bump failed", flowcache.Fields{"key": sk, "err": bumpErr})
		c.hooks.GenBumpError(sk, bumpErr)
	}
	delErr := c.provider.Del(ctx, sk)
	if bumpErr != nil && delErr != nil {
		c.hooks.InvalidateOutage(sk, bumpErr, delErr)
		return errors.Join(bumpErr, delErr)
	}
	if delErr != nil {
		c.log.Warn("delete failed after generation bump", flowcache.Fields{"key": sk, "gen": newGen, "err": delErr})
	}
	return nil
}

func (c *Cache[K, V]) SaveAppending(ctx context.Context, key K, cached flowcache.Content[V], page V) error {
	if c.merge.Append == nil {
		return flowcache.ErrPagingUnsupported
	}
	return c.Save(ctx, key, c.merge.Append(cached, page))
}

func (c *Cache[K, V]) SavePrepending(ctx context.Context, key K, cached flowcache.Content[V], page V) error {
	if c.merge.Prepend == nil {
		return flowcache.ErrPagingUnsupported
	}
	return c.Save(ctx, key, c.merge.Prepend(cached, page))
}

// Stale reports whether the entry for key is missing or older than MaxAge.
// With MaxAge == 0 only a missing entry is stale.
func (c *Cache[K, V]) Stale(ctx context.Context, key K) (bool, error) {
	e, ok, err := c.entry(ctx, c.StorageKey(key))
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}
	return c.maxAge > 0 && c.now().Sub(e.SavedAt) > c.maxAge, nil
}

// NeedRefresh is a flowcache.NeedRefreshFunc driven by MaxAge. Read errors
// count as stale.
func (c *Cache[K, V]) NeedRefresh(ctx context.Context, key K, _ V) bool {
	if c.maxAge <= 0 {
		return false
	}
	stale, err := c.Stale(ctx, key)
	if err != nil {
		c.log.Warn("staleness check failed", flowcache.Fields{"key": c.StorageKey(key), "err": err})
	}
	return stale
}

// Close closes the generation store it created, then the provider.
func (c *Cache[K, V]) Close(ctx context.Context) error {
	if c.ownsGen {
		_ = c.gen.Close(ctx)
	}
	return c.provider.Close(ctx)
}
