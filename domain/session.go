// Package domain contains core concepts of the chat relay.
// This file defines Session state and the presence view derived from it.
// No runtime, network, or UI logic should be added here.
package domain

// ConnID identifies one accepted connection for the lifetime of that
// connection. It is the registry key and the logging handle.
type ConnID string

// Session is the server-side state of one authenticated connection.
// The token is compared on every request from the owning connection and
// must never be transmitted to other sessions.
type Session struct {
	ConnID   ConnID
	Username string
	Token    string
	Color    string // 6 hex digits, display only
}

// PresenceRecord is the token-stripped view of a Session, rebuilt for
// each presence broadcast and never stored.
type PresenceRecord struct {
	Username string
	Color    string
}

// Presence strips the session down to what peers are allowed to see.
func (s *Session) Presence() PresenceRecord {
	return PresenceRecord{Username: s.Username, Color: s.Color}
}
