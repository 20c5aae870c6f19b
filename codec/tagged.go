package codec

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/kvcache/internal/counter"
)

// ErrUnknownPayload is returned for bytes written neither by the wrapped
// codec nor by Increment.
var ErrUnknownPayload = errors.New("codec: payload not written by this codec")

// Tags used by ByName. None is a digit or '-', so a tagged payload can never
// be read as a counter.
const (
	TagCBOR     byte = 'c'
	TagMsgpack  byte = 'm'
	TagProtobuf byte = 'p'
)

// Tagged prefixes every payload of a binary codec with Tag. Counters written
// by Increment are stored as bare base-10 text; Decode recognizes those and
// returns them as int64 instead of feeding them to Inner.
type Tagged struct {
	Inner Codec[any]
	Tag   byte
}

func (c Tagged) Encode(v any) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, c.Tag)
	return append(out, b...), nil
}

func (c Tagged) Decode(b []byte) (any, error) {
	if len(b) > 0 && b[0] == c.Tag {
		return c.Inner.Decode(b[1:])
	}
	if n, err := counter.Parse(b); err == nil {
		return n, nil
	}
	return nil, fmt.Errorf("%w (tag %q)", ErrUnknownPayload, c.Tag)
}
