// Package codec converts session values to the bytes a backend stores.
package codec

import (
	"fmt"
	"strings"

	"github.com/unkn0wn-root/kvcache/backend"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names accepted by ByName.
const (
	NameJSON     = "json"
	NameCBOR     = "cbor"
	NameMsgpack  = "msgpack"
	NameProtobuf = "protobuf"
)

// ByName returns the dynamic codec registered under name (case-insensitive).
// An empty name selects JSON. The binary codecs are wrapped in Tagged so
// counters read back as int64. maxDecode > 0 wraps the codec in LimitCodec.
func ByName(name string, maxDecode int) (Codec[any], error) {
	var c Codec[any]
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameJSON:
		c = JSONCodec[any]{}
	case NameCBOR:
		cb, err := NewCBOR[any](false)
		if err != nil {
			return nil, err
		}
		c = Tagged{Inner: cb, Tag: TagCBOR}
	case NameMsgpack:
		c = Tagged{Inner: Msgpack[any]{}, Tag: TagMsgpack}
	case NameProtobuf:
		c = Tagged{Inner: Struct{}, Tag: TagProtobuf}
	default:
		return nil, fmt.Errorf("codec %q: %w", name, backend.ErrConfiguration)
	}
	if maxDecode > 0 {
		return LimitCodec[any]{Inner: c, MaxDecode: maxDecode}, nil
	}
	return c, nil
}
