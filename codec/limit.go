package codec

import "fmt"

// Limit wraps another codec and bounds payload sizes in both directions.
// A bound <= 0 disables that check.
//
// Typical use: a Redis provider shared with other services, where an
// oversized entry should be rejected (and self-healed) instead of decoded.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxEncode int
	MaxDecode int
}

var _ Codec[int] = Limit[int]{}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.MaxEncode > 0 && len(b) > c.MaxEncode {
		return nil, fmt.Errorf("%w: encoded %d > %d", ErrTooLarge, len(b), c.MaxEncode)
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
