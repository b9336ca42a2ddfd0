package genstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	gen       uint64
	updatedAt time.Time
}

// Local keeps generations in-process. With a retention, a background loop
// forgets keys that were not bumped for that long; a forgotten key reads as
// generation 0, so entries written under it stay valid only if they were
// written at 0 too.
type Local struct {
	mu   sync.RWMutex
	gens map[string]localEntry
	now  func() time.Time

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Store = (*Local)(nil)

// NewLocal returns a Local store. cleanupInterval <= 0 or retention <= 0
// disables pruning.
func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{
		gens:   make(map[string]localEntry),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	if cleanupInterval > 0 && retention > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(cleanupInterval, retention)
	}
	return s
}

func (s *Local) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[k].gen, nil
}

func (s *Local) Bump(_ context.Context, k string) (uint64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.gens[k]
	e.gen++
	e.updatedAt = now
	s.gens[k] = e
	return e.gen, nil
}

// Cleanup drops keys last bumped before now-retention.
func (s *Local) Cleanup(retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.gens {
		if e.updatedAt.Before(cutoff) {
			delete(s.gens, k)
			n++
		}
	}
	return n
}

func (s *Local) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
	return nil
}

func (s *Local) cleanupLoop(interval, retention time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stopCh:
			return
		}
	}
}
