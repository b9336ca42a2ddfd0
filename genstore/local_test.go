package genstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocal_SnapshotAndBump(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if g, _ := s.Snapshot(ctx, "a"); g != 0 {
		t.Fatalf("missing key gen = %d, want 0", g)
	}
	for want := uint64(1); want <= 3; want++ {
		g, err := s.Bump(ctx, "a")
		if err != nil || g != want {
			t.Fatalf("Bump = (%d, %v), want %d", g, err, want)
		}
	}
	if g, _ := s.Snapshot(ctx, "b"); g != 0 {
		t.Fatalf("bump leaked to other key: %d", g)
	}
}

func TestLocal_ConcurrentBumps(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Bump(ctx, "k")
		}()
	}
	wg.Wait()
	if g, _ := s.Snapshot(ctx, "k"); g != 50 {
		t.Fatalf("gen = %d, want 50", g)
	}
}

func TestLocal_CleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	base := time.Unix(1000, 0)
	s.now = func() time.Time { return base }
	_, _ = s.Bump(ctx, "old")
	s.now = func() time.Time { return base.Add(90 * time.Second) }
	_, _ = s.Bump(ctx, "fresh")

	if n := s.Cleanup(time.Minute); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if g, _ := s.Snapshot(ctx, "old"); g != 0 {
		t.Fatalf("expected pruned -> 0, got %d", g)
	}
	if g, _ := s.Snapshot(ctx, "fresh"); g != 1 {
		t.Fatalf("fresh key pruned: %d", g)
	}
}

func TestLocal_CloseIdempotent(t *testing.T) {
	s := NewLocal(time.Millisecond, time.Hour)
	_ = s.Close(context.Background())
	_ = s.Close(context.Background())
}
