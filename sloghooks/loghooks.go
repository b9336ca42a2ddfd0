// Package sloghooks logs flowcache and kvcache events to a *slog.Logger,
// with sampling for the noisy ones and keys redacted by default.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/flowcache"
	"github.com/unkn0wn-root/flowcache/kvcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchEvery    uint64
	JoinEvery     uint64
	SelfHealEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr    atomic.Uint64
	joinCtr     atomic.Uint64
	selfHealCtr atomic.Uint64
}

var (
	_ flowcache.Hooks = (*Hooks)(nil)
	_ kvcache.Hooks   = (*Hooks)(nil)
)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

// FetchFinished logs every failure; successes are sampled.
func (h *Hooks) FetchFinished(ns, key string, kind flowcache.RequestKind, took time.Duration, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("flowcache.fetch_failed",
			"ns", ns,
			"key", h.redact(key),
			"kind", kind.String(),
			"took", took,
			"err", err)
		return
	}
	if !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("flowcache.fetch_finished",
		"ns", ns,
		"key", h.redact(key),
		"kind", kind.String(),
		"took", took)
}

func (h *Hooks) FetchJoined(ns, key string) {
	if h.l == nil || !sample(h.opts.JoinEvery, &h.joinCtr) {
		return
	}
	h.l.Debug("flowcache.fetch_joined",
		"ns", ns,
		"key", h.redact(key))
}

func (h *Hooks) CacheFailed(ns, key, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("flowcache.cache_failed",
		"ns", ns,
		"key", h.redact(key),
		"op", op,
		"err", err)
}

func (h *Hooks) PanicRecovered(ns, key string, v any) {
	if h.l == nil {
		return
	}
	h.l.Error("flowcache.panic_recovered",
		"ns", ns,
		"key", h.redact(key),
		"panic", v)
}

func (h *Hooks) SubscriberCount(ns, key string, n int) {
	if h.l == nil {
		return
	}
	h.l.Debug("flowcache.subscribers",
		"ns", ns,
		"key", h.redact(key),
		"count", n)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("kvcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) SetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("kvcache.set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("kvcache.gen_bump_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) InvalidateOutage(storageKey string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("kvcache.invalidate_outage",
		"key", h.redact(storageKey),
		"bump_err", bumpErr,
		"del_err", delErr)
}
