// Package provider defines the byte stores kvcache persists entries in.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set for that key. Stores that transform values
// internally (compression, encryption) must fully reverse the transform.
//
// kvcache owns the keyspace "flow:<ns>:" on the store. Foreign values written
// under that prefix fail frame validation and are deleted.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by providers used after Close.
var ErrClosed = errors.New("provider: closed")

// Provider is a minimal byte store with TTLs. It must be safe for concurrent
// use, and a successful Set must be visible to a following Get.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 means no expiry). Stores that
	// cannot honor per-entry TTLs or costs may ignore them.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
