package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Proto serializes protobuf messages. T is the pointer message type, for
// example *userpb.User; New must return an empty message of that type.
type Proto[T proto.Message] struct {
	New  func() T
	Opts proto.MarshalOptions
}

func NewProto[T proto.Message](ctor func() T) Proto[T] {
	return Proto[T]{New: ctor, Opts: proto.MarshalOptions{Deterministic: true}}
}

func (c Proto[T]) Encode(v T) ([]byte, error) { return c.Opts.Marshal(v) }

func (c Proto[T]) Decode(b []byte) (T, error) {
	if c.New == nil {
		var zero T
		return zero, errors.New("codec: Proto.New is nil")
	}
	m := c.New()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}
