package wire

import "encoding/json"

// PayloadCodec serializes the application structure carried inside a
// frame payload. The framing layer only requires that mapping, sequence
// and primitive values round-trip deterministically.
type PayloadCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default payload codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
