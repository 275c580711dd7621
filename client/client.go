// Package client is the relay's client-side library: it dials the
// server, runs the auth handshake, and turns inbound frames into typed
// events on a channel. The terminal front-end and the end-to-end tests
// both sit on top of it.
package client

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"chat-relay/wire"
)

// Event is anything the server pushes after admission. Concrete types:
// ChatMessage, RosterSnapshot, PeersJoined, PeersLeft, Disconnected.
type Event any

// ChatMessage is one broadcast chat line.
type ChatMessage struct {
	Username string
	Message  string
	Color    string
}

// RosterSnapshot is the initial everyone-but-you roster.
type RosterSnapshot struct {
	Users []wire.Presence
}

// PeersJoined announces new sessions.
type PeersJoined struct {
	Users []wire.Presence
}

// PeersLeft announces departed sessions.
type PeersLeft struct {
	Users []wire.Presence
}

// Disconnected is always the final event; the events channel closes
// right after it.
type Disconnected struct {
	Err error
}

// Client is not safe for concurrent Sends from multiple goroutines
// without external coordination of message order; individual calls are
// serialized internally.
type Client struct {
	log    *slog.Logger
	nc     net.Conn
	framer *wire.Framer
	dec    *wire.Decoder

	writeMu sync.Mutex
	token   string
	events  chan Event
}

// Dial connects to the relay. The connection is useless until Register
// or Login succeeds.
func Dial(log *slog.Logger, addr string, timeout time.Duration) (*Client, error) {
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{
		log:    log,
		nc:     nc,
		framer: wire.NewFramer(nil),
		dec:    wire.NewDecoder(),
		events: make(chan Event, 64),
	}, nil
}

// Register creates an account and, on success, enters the chat.
func (c *Client) Register(username, password string) (wire.AuthResult, error) {
	return c.handshake(wire.KindRegister, username, password)
}

// Login authenticates an existing account and, on success, enters the
// chat.
func (c *Client) Login(username, password string) (wire.AuthResult, error) {
	return c.handshake(wire.KindLogin, username, password)
}

// handshake sends the credentials and synchronously waits for the auth
// verdict. On success the read pump starts and every later frame
// arrives through Events.
func (c *Client) handshake(kind wire.Kind, username, password string) (wire.AuthResult, error) {
	var result wire.AuthResult

	if err := c.write(kind, wire.Credentials{Username: username, Password: password}); err != nil {
		return result, err
	}

	frame, err := c.readFrame()
	if err != nil {
		return result, fmt.Errorf("waiting for auth result: %w", err)
	}
	if frame.Kind != wire.KindAuthResult {
		return result, fmt.Errorf("expected auth result, got %s frame", frame.Kind)
	}
	if err := c.framer.DecodePayload(frame, &result); err != nil {
		return result, err
	}

	if result.Success {
		c.token = result.Token
		go c.readLoop()
	}
	return result, nil
}

// Send broadcasts one chat message.
func (c *Client) Send(message string) error {
	if c.token == "" {
		return fmt.Errorf("not authenticated")
	}
	return c.write(wire.KindChat, wire.ChatRequest{Token: c.token, Message: message})
}

// Events delivers server pushes in arrival order. The channel closes
// after a Disconnected event.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Token exposes the session token, mainly for tests.
func (c *Client) Token() string {
	return c.token
}

// Close tears the connection down. The read pump, if running, winds up
// with a Disconnected event.
func (c *Client) Close() error {
	return c.nc.Close()
}

func (c *Client) write(kind wire.Kind, payload any) error {
	data, err := c.framer.Encode(kind, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(data); err != nil {
		return fmt.Errorf("sending %s frame: %w", kind, err)
	}
	return nil
}

// readFrame blocks until one complete frame is decoded.
func (c *Client) readFrame() (*wire.Frame, error) {
	buf := make([]byte, 4096)
	for {
		frame, err := c.dec.Next()
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame, nil
		}
		n, err := c.nc.Read(buf)
		if err != nil {
			return nil, err
		}
		c.dec.Feed(buf[:n])
	}
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		frame, err := c.readFrame()
		if err != nil {
			c.events <- Disconnected{Err: err}
			return
		}
		event, err := c.toEvent(frame)
		if err != nil {
			c.log.Warn("discarding frame", "kind", frame.Kind, "error", err)
			continue
		}
		if event != nil {
			c.events <- event
		}
	}
}

// toEvent maps a frame to its event. Unknown kinds map to nil and are
// skipped, matching the server's tolerance in the other direction.
func (c *Client) toEvent(frame *wire.Frame) (Event, error) {
	switch frame.Kind {
	case wire.KindChat:
		var chat wire.ChatEvent
		if err := c.framer.DecodePayload(frame, &chat); err != nil {
			return nil, err
		}
		return ChatMessage{Username: chat.Username, Message: chat.Message, Color: chat.Color}, nil
	case wire.KindPresenceSet:
		users, err := c.presence(frame)
		return RosterSnapshot{Users: users}, err
	case wire.KindPresenceAdded:
		users, err := c.presence(frame)
		return PeersJoined{Users: users}, err
	case wire.KindPresenceRemoved:
		users, err := c.presence(frame)
		return PeersLeft{Users: users}, err
	default:
		c.log.Debug("unknown frame kind", "kind", frame.Kind)
		return nil, nil
	}
}

func (c *Client) presence(frame *wire.Frame) ([]wire.Presence, error) {
	var users []wire.Presence
	if err := c.framer.DecodePayload(frame, &users); err != nil {
		return nil, err
	}
	return users, nil
}
