// Package wire frames entries for byte-only stores that cannot keep
// per-entry metadata themselves (bigcache has no per-entry TTL).
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

	hdrLen = 4 + 1 + 1 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("kvcache: corrupt entry")
	magic4     = [...]byte{'K', 'V', 'C', 'E'}
)

// Entry is the decoded form. Payload aliases the input buffer.
type Entry struct {
	CreatedAt time.Time
	ExpiresAt time.Time // zero => no TTL
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// magic(4) | ver(1) | kind(1) | created(i64 be ns) | expires(i64 be ns, 0=none) | vlen(u32 be) | payload(vlen)
func EncodeEntry(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(unixNano(e.CreatedAt)))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(unixNano(e.ExpiresAt)))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// DecodeEntry is strict: bad header, short buffer or trailing bytes => ErrCorrupt.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}
	off := 6

	created := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	expires := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // overflow-safe, rejects trailing bytes
		return Entry{}, ErrCorrupt
	}

	return Entry{
		CreatedAt: fromUnixNano(created),
		ExpiresAt: fromUnixNano(expires),
		Payload:   b[off : off+vlen],
	}, nil
}

// WithPayload re-encodes e with a new payload, keeping both timestamps.
func WithPayload(e Entry, payload []byte) []byte {
	e.Payload = payload
	return EncodeEntry(e)
}
