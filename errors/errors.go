package errors

import "fmt"

// Transport errors always terminate the connection they occurred on.
var (
	ErrPeerClosed       = fmt.Errorf("peer closed the connection")
	ErrMalformedHeader  = fmt.Errorf("malformed frame header")
	ErrPayloadTooLarge  = fmt.Errorf("frame payload exceeds limit")
	ErrConnectionClosed = fmt.Errorf("connection already closed")
)

// Protocol errors drop the offending frame and keep the connection alive.
var (
	ErrUnknownKind    = fmt.Errorf("unknown frame kind")
	ErrInvalidPayload = fmt.Errorf("payload does not match frame kind schema")
	ErrKindTooLong    = fmt.Errorf("frame kind exceeds header width")
)

// Auth errors are reported to the client through an auth result frame.
var (
	ErrUsernameTaken      = fmt.Errorf("username already taken")
	ErrInvalidUsername    = fmt.Errorf("username does not satisfy policy")
	ErrInvalidPassword    = fmt.Errorf("password does not satisfy policy")
	ErrInvalidCredentials = fmt.Errorf("bad username or password")
	ErrStoreUnavailable   = fmt.Errorf("credential store unreachable")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
)

// Authorization errors are dropped silently, never echoed to the peer.
var ErrTokenMismatch = fmt.Errorf("session token mismatch")

var ErrWorkerPanic = fmt.Errorf("worker panic")
