package genstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := NewRedis(RedisConfig{Client: rdb, Namespace: "user", TTL: ttl, CloseClient: true})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return mr, s
}

func TestNewRedis_Validation(t *testing.T) {
	if _, err := NewRedis(RedisConfig{Namespace: "x"}); err == nil {
		t.Fatal("expected error for nil client")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := NewRedis(RedisConfig{Client: rdb}); err == nil {
		t.Fatal("expected error for empty namespace")
	}
}

func TestRedis_SnapshotAndBump(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedisStore(t, 0)

	if g, err := s.Snapshot(ctx, "k"); err != nil || g != 0 {
		t.Fatalf("Snapshot missing = (%d, %v)", g, err)
	}
	if g, err := s.Bump(ctx, "k"); err != nil || g != 1 {
		t.Fatalf("Bump = (%d, %v)", g, err)
	}
	if g, _ := s.Bump(ctx, "k"); g != 2 {
		t.Fatalf("second Bump = %d", g)
	}
	if g, _ := s.Snapshot(ctx, "k"); g != 2 {
		t.Fatalf("Snapshot = %d", g)
	}
	if v, _ := mr.Get("gen:user:k"); v != "2" {
		t.Fatalf("stored value = %q", v)
	}
	if ttl := mr.TTL("gen:user:k"); ttl != 0 {
		t.Fatalf("unexpected TTL %v", ttl)
	}
}

func TestRedis_BumpWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedisStore(t, time.Hour)

	if g, err := s.Bump(ctx, "k"); err != nil || g != 1 {
		t.Fatalf("Bump = (%d, %v)", g, err)
	}
	if ttl := mr.TTL("gen:user:k"); ttl != time.Hour {
		t.Fatalf("TTL = %v", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if g, _ := s.Snapshot(ctx, "k"); g != 0 {
		t.Fatalf("expired gen = %d, want 0", g)
	}
}

func TestRedis_ParseError(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedisStore(t, 0)
	_ = mr.Set("gen:user:k", "not-a-number")
	if _, err := s.Snapshot(ctx, "k"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRedis_SharedAcrossStores(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	mk := func() *Redis {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		s, err := NewRedis(RedisConfig{Client: rdb, Namespace: "user", CloseClient: true})
		if err != nil {
			t.Fatalf("NewRedis: %v", err)
		}
		t.Cleanup(func() { _ = s.Close(ctx) })
		return s
	}
	a, b := mk(), mk()
	_, _ = a.Bump(ctx, "k")
	if g, _ := b.Snapshot(ctx, "k"); g != 1 {
		t.Fatalf("replica b sees gen %d, want 1", g)
	}
}
