// Package wire implements the relay's framing layer: a fixed-width
// length+kind prefix followed by an opaque payload, with a pluggable
// payload codec and a closed set of per-kind payload schemas.
package wire

// Header layout: LengthWidth ASCII decimal bytes (space padded) holding
// the payload size, then KindWidth ASCII bytes (space padded) holding the
// frame kind, then exactly that many payload bytes.
const (
	LengthWidth = 10
	KindWidth   = 10
	PrefixSize  = LengthWidth + KindWidth

	// MaxPayloadSize bounds a single frame. Anything larger is treated
	// as a corrupted stream rather than a legitimate message.
	MaxPayloadSize = 1 << 20
)

// Kind tags a frame. Values must fit in KindWidth bytes, so the longer
// logical names are carried as short wire codes.
type Kind string

const (
	// Client to server.
	KindRegister Kind = "REGISTER"
	KindLogin    Kind = "LOGIN"
	KindChat     Kind = "CHAT" // also server to client, different schema

	// Server to client.
	KindAuthResult      Kind = "AUTHRESULT"
	KindPresenceSet     Kind = "ROSTER"
	KindPresenceAdded   Kind = "JOINED"
	KindPresenceRemoved Kind = "LEFT"
)

// Frame is one decoded wire unit. Ephemeral: built per read or write,
// never persisted.
type Frame struct {
	Kind    Kind
	Payload []byte
}
