package intercept

import "encoding/json"

// Codec is the injected encode/decode pair used to persist handler results.
// The file store keeps entries as JSON values, so an Encode must produce
// valid JSON. JSONCodec is the default; anything with the same shape (e.g.
// a canonicalizing or schema-checked encoder) can be swapped in.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
