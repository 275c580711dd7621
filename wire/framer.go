package wire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"chat-relay/errors"
)

// Framer encodes logical messages into frames and decodes frame payloads
// back into their schemas. Stateless beyond the codec choice.
type Framer struct {
	codec PayloadCodec
}

// NewFramer builds a Framer around the given payload codec.
// A nil codec selects JSON.
func NewFramer(codec PayloadCodec) *Framer {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Framer{codec: codec}
}

// Encode produces the full wire bytes for one frame: padded length,
// padded kind, payload.
func (f *Framer) Encode(kind Kind, v any) ([]byte, error) {
	if len(kind) > KindWidth {
		return nil, fmt.Errorf("%w: %q", errors.ErrKindTooLong, kind)
	}
	payload, err := f.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", errors.ErrPayloadTooLarge, len(payload))
	}

	buf := make([]byte, 0, PrefixSize+len(payload))
	buf = append(buf, fmt.Sprintf("%*d", LengthWidth, len(payload))...)
	buf = append(buf, fmt.Sprintf("%*s", KindWidth, string(kind))...)
	buf = append(buf, payload...)
	return buf, nil
}

// DecodePayload unmarshals a frame payload into the schema for its kind.
// Failures are protocol errors: the frame is dropped, the connection lives.
func (f *Framer) DecodePayload(frame *Frame, v any) error {
	if err := f.codec.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("%w: %s frame: %v", errors.ErrInvalidPayload, frame.Kind, err)
	}
	return nil
}

// Decoder turns an arbitrarily chunked byte stream back into frames.
// Feed appends bytes as they arrive; Next pops complete frames. Partial
// frames stay buffered until the missing bytes show up, so a frame split
// across any number of reads decodes exactly like one delivered whole.
//
// Decoder is not safe for concurrent use; each connection owns one.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends raw bytes from the stream.
func (d *Decoder) Feed(p []byte) {
	d.buf.Write(p)
}

// Buffered reports how many bytes are held back waiting for a complete
// frame. Non-zero at EOF means the peer vanished mid-frame.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Next returns the next complete frame, or (nil, nil) when more bytes
// are needed. A prefix that cannot be parsed poisons the stream: the
// error is permanent and the connection must be torn down.
func (d *Decoder) Next() (*Frame, error) {
	if d.buf.Len() < PrefixSize {
		return nil, nil
	}

	head := d.buf.Bytes()[:PrefixSize]
	length, err := parseLength(head[:LengthWidth])
	if err != nil {
		return nil, err
	}
	if d.buf.Len() < PrefixSize+length {
		return nil, nil
	}

	d.buf.Next(LengthWidth)
	kind := Kind(strings.TrimSpace(string(d.buf.Next(KindWidth))))
	payload := make([]byte, length)
	copy(payload, d.buf.Next(length))
	return &Frame{Kind: kind, Payload: payload}, nil
}

func parseLength(field []byte) (int, error) {
	raw := strings.TrimSpace(string(field))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: length field %q", errors.ErrMalformedHeader, raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative length %d", errors.ErrMalformedHeader, n)
	}
	if n > MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d bytes", errors.ErrPayloadTooLarge, n)
	}
	return n, nil
}
