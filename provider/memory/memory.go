// Package memory is an in-process provider.Provider backed by a map, with
// per-entry TTLs and a periodic sweep of expired entries.
package memory

import (
	"context"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/flowcache/provider"
)

const defaultSweep = time.Minute

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Provider struct {
	mu     sync.RWMutex
	m      map[string]entry
	closed bool

	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	SweepInterval time.Duration // 0 => 1m; < 0 disables the sweeper
}

func New(cfg Config) *Provider {
	p := &Provider{
		m:      make(map[string]entry),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	interval := cfg.SweepInterval
	if interval == 0 {
		interval = defaultSweep
	}
	if interval > 0 {
		p.wg.Add(1)
		go p.sweepLoop(interval)
	}
	return p
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	e, ok := p.m[key]
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, false, pr.ErrClosed
	}
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && !p.now().Before(e.exp) {
		p.mu.Lock()
		if cur, ok := p.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(p.m, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	v := append([]byte(nil), value...)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, pr.ErrClosed
	}
	p.m[key] = entry{v: v, exp: exp}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return pr.ErrClosed
	}
	delete(p.m, key)
	return nil
}

// Len returns the number of stored entries, expired ones included until swept.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

func (p *Provider) Close(_ context.Context) error {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		p.mu.Lock()
		p.closed = true
		p.m = nil
		p.mu.Unlock()
	})
	return nil
}

func (p *Provider) sweepLoop(interval time.Duration) {
	defer p.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Provider) sweep() {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if !e.exp.IsZero() && !now.Before(e.exp) {
			delete(p.m, k)
		}
	}
}
