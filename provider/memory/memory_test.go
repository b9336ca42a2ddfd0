package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/flowcache/provider"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestProvider_GetSetDel(t *testing.T) {
	ctx := context.Background()
	p := New(Config{SweepInterval: -1})
	defer p.Close(ctx)

	if _, ok, err := p.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("Get miss = ok=%v err=%v", ok, err)
	}
	src := []byte("v1")
	if ok, err := p.Set(ctx, "k", src, 1, 0); !ok || err != nil {
		t.Fatalf("Set = ok=%v err=%v", ok, err)
	}
	src[0] = 'X' // caller reuse must not leak into the store
	if b, ok, _ := p.Get(ctx, "k"); !ok || string(b) != "v1" {
		t.Fatalf("Get = %q ok=%v", b, ok)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del missing: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatal("hit after Del")
	}
}

func TestProvider_TTL(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Unix(1000, 0)}
	p := New(Config{SweepInterval: -1})
	p.now = clk.now
	defer p.Close(ctx)

	_, _ = p.Set(ctx, "short", []byte("a"), 1, time.Second)
	_, _ = p.Set(ctx, "forever", []byte("b"), 1, 0)

	clk.advance(999 * time.Millisecond)
	if _, ok, _ := p.Get(ctx, "short"); !ok {
		t.Fatal("expired too early")
	}
	clk.advance(time.Millisecond)
	if _, ok, _ := p.Get(ctx, "short"); ok {
		t.Fatal("expected expiry at deadline")
	}
	if _, ok, _ := p.Get(ctx, "forever"); !ok {
		t.Fatal("no-TTL entry expired")
	}
}

func TestProvider_Sweep(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Unix(1000, 0)}
	p := New(Config{SweepInterval: -1})
	p.now = clk.now
	defer p.Close(ctx)

	for _, k := range []string{"a", "b", "c"} {
		_, _ = p.Set(ctx, k, []byte(k), 1, time.Second)
	}
	_, _ = p.Set(ctx, "keep", []byte("x"), 1, time.Hour)
	clk.advance(2 * time.Second)
	p.sweep()
	if n := p.Len(); n != 1 {
		t.Fatalf("Len after sweep = %d, want 1", n)
	}
}

func TestProvider_Closed(t *testing.T) {
	ctx := context.Background()
	p := New(Config{})
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = p.Close(ctx)
	if _, _, err := p.Get(ctx, "k"); !errors.Is(err, pr.ErrClosed) {
		t.Fatalf("Get after Close err = %v", err)
	}
	if _, err := p.Set(ctx, "k", nil, 1, 0); !errors.Is(err, pr.ErrClosed) {
		t.Fatalf("Set after Close err = %v", err)
	}
}
