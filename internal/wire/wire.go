// Package wire frames cached payloads with the metadata kvcache needs to
// validate them on read.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version   byte = 1
	kindEntry byte = 1

	// magic(4) | ver(1) | kind(1) | gen(8) | savedAt(8) | vlen(4)
	headerLen = 4 + 1 + 1 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("flowcache: corrupt cache entry")
	magic4     = [...]byte{'F', 'L', 'W', 'C'}
)

// Entry is one decoded cache value.
type Entry struct {
	Gen     uint64
	SavedAt time.Time
	Payload []byte // aliases the decoded buffer
}

// EncodeEntry frames payload:
//
//	magic(4) | ver(1) | kind(1=entry) | gen(u64 be) | savedAt(unix nanos, i64 be) | vlen(u32 be) | payload(vlen)
func EncodeEntry(gen uint64, savedAt time.Time, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(savedAt.UnixNano()))
	buf.Write(u8[:])

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeEntry parses a frame produced by EncodeEntry. The frame must be
// exact: short buffers and trailing bytes are both ErrCorrupt.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < headerLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}
	off := 6

	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	nanos := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{
		Gen:     gen,
		SavedAt: time.Unix(0, nanos),
		Payload: b[off:],
	}, nil
}
