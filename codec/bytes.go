package codec

// Bytes stores []byte values as they are. Decode copies, since providers may
// reuse the buffer they return.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// String stores string values as UTF-8 bytes without validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
