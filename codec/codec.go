// Package codec converts cached values to and from bytes for kvcache.
package codec

import "errors"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ErrTooLarge is returned by Limit when a payload exceeds its bound.
var ErrTooLarge = errors.New("codec: payload too large")
