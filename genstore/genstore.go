// Package genstore keeps the per-key generation counters kvcache stamps into
// every entry. Bumping a key's generation invalidates all entries written
// under an older one, in every process that shares the store.
package genstore

import "context"

// Store abstracts where generations live.
// Use Local for in-process gens, or Redis to share them across replicas.
type Store interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
