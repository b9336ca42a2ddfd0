package codec

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// CBOR serializes values with fxamacker/cbor. Construct with NewCBOR or
// MustCBOR; the zero value is not usable.
// Time values are encoded as RFC3339Nano.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

// NewCBOR builds a CBOR codec. deterministic selects RFC 8949 core
// deterministic encoding; otherwise preferred unsorted encoding is used.
func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	var eo cbor.EncOptions
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := cbor.DecOptions{MaxNestedLevels: 64}.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR is like NewCBOR but panics on error.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	if c.enc == nil {
		return nil, errors.New("codec: CBOR not initialized, use NewCBOR")
	}
	return c.enc.Marshal(v)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	if c.dec == nil {
		var zero V
		return zero, errors.New("codec: CBOR not initialized, use NewCBOR")
	}
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
