package codec

import "encoding/json"

// JSONCodec is the default. Counters written by Increment are valid JSON
// numbers, so they decode as float64 through an any-typed codec.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSONCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
