package runtime

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/wire"
)

// dispatchEvent is anything the dispatcher loop consumes. Producers are
// the listener (connAccepted), the per-connection read pumps
// (frameReceived, connClosed) and the in-flight auth goroutines
// (authDone).
type dispatchEvent any

type connAccepted struct {
	nc net.Conn
}

type frameReceived struct {
	id    domain.ConnID
	frame *wire.Frame
}

type connClosed struct {
	id     domain.ConnID
	reason error
}

type authDone struct {
	id       domain.ConnID
	username string
	verdict  auth.Result
}

// connState tracks the per-connection handshake machine. Connecting is
// implicit (the instant between accept and tracking); Closed is implicit
// too: a closed connection is simply no longer tracked.
type connState int

const (
	stateAwaitingAuth connState = iota
	stateAuthPending
	stateActive
)

type tracked struct {
	c  *conn
	st connState
}

// Moderator filters an outbound chat message. *moderation.Moderator
// satisfies it; nil means no filtering.
type Moderator interface {
	Censor(message string) string
}

// DispatcherConfig carries the knobs the dispatcher needs.
type DispatcherConfig struct {
	// InboxSize buffers the event loop; readers block (never drop)
	// when it fills.
	InboxSize int
	// ConnBufferSize buffers each connection's outbound queue;
	// broadcasts to a full queue are dropped for that peer only.
	ConnBufferSize int
	// WriteTimeout bounds a single socket write.
	WriteTimeout time.Duration
	// AuthTimeout bounds one credential service round trip.
	AuthTimeout time.Duration
}

// Dispatcher is the single logical event loop multiplexing every
// connection. All registry mutation and every broadcast happens on the
// Run goroutine; auth verdicts are computed off-loop and marshalled
// back in as events. This is what makes the registry lock-free and the
// broadcast snapshots consistent.
type Dispatcher struct {
	log       *slog.Logger
	gateway   *auth.Gateway
	registry  *Registry
	framer    *wire.Framer
	moderator Moderator
	cfg       DispatcherConfig

	inbox chan dispatchEvent
	conns map[domain.ConnID]*tracked

	// loop context, set by Run; used by pump goroutines to give up
	// posting once the loop is gone.
	ctx context.Context
}

// NewDispatcher wires the loop. moderator may be nil.
func NewDispatcher(log *slog.Logger, gateway *auth.Gateway, registry *Registry,
	framer *wire.Framer, moderator Moderator, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		log:       log,
		gateway:   gateway,
		registry:  registry,
		framer:    framer,
		moderator: moderator,
		cfg:       cfg,
		inbox:     make(chan dispatchEvent, cfg.InboxSize),
		conns:     make(map[domain.ConnID]*tracked),
	}
}

// Attach hands a freshly accepted socket to the loop. Called by the
// listener goroutine.
func (d *Dispatcher) Attach(ctx context.Context, nc net.Conn) {
	if !post(ctx, d.inbox, connAccepted{nc: nc}) {
		_ = nc.Close()
	}
}

// Run consumes events until the context is cancelled, then closes every
// tracked connection. Clean shutdown returns nil so the supervisor does
// not restart it.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.ctx = ctx
	d.log.Info("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopping", "open_conns", len(d.conns))
			for id := range d.conns {
				d.drop(id)
			}
			return nil
		case ev := <-d.inbox:
			switch ev := ev.(type) {
			case connAccepted:
				d.handleAccepted(ev.nc)
			case frameReceived:
				d.handleFrame(ev.id, ev.frame)
			case connClosed:
				d.handleClosed(ev.id, ev.reason)
			case authDone:
				d.handleAuthDone(ev)
			}
		}
	}
}

// handleAccepted starts tracking a connection and spins up its pumps.
// The connection holds no session yet: first frame must authenticate.
func (d *Dispatcher) handleAccepted(nc net.Conn) {
	id := domain.ConnID(uuid.NewString())
	c := newConn(id, nc, d.log, d.framer, d.cfg.ConnBufferSize, d.cfg.WriteTimeout)
	d.conns[id] = &tracked{c: c, st: stateAwaitingAuth}

	go c.writeLoop()
	go c.readLoop(d.ctx, d.inbox)

	c.log.Debug("connection accepted")
}

func (d *Dispatcher) handleFrame(id domain.ConnID, frame *wire.Frame) {
	t, ok := d.conns[id]
	if !ok {
		return // raced with teardown
	}

	switch t.st {
	case stateAwaitingAuth:
		d.handleHandshake(t, frame)
	case stateAuthPending:
		// Frames sent before the verdict are not part of the protocol.
		t.c.log.Warn("frame during pending auth, dropping", "kind", frame.Kind)
	case stateActive:
		d.handleActive(t, frame)
	}
}

// handleHandshake processes the first frame of a connection. Anything
// other than a well-formed REGISTER or LOGIN closes it without ceremony.
func (d *Dispatcher) handleHandshake(t *tracked, frame *wire.Frame) {
	if frame.Kind != wire.KindRegister && frame.Kind != wire.KindLogin {
		t.c.log.Warn("handshake frame has wrong kind, closing", "kind", frame.Kind)
		d.drop(t.c.id)
		return
	}

	var creds wire.Credentials
	if err := d.framer.DecodePayload(frame, &creds); err != nil {
		t.c.log.Warn("malformed handshake payload, closing", "error", err)
		d.drop(t.c.id)
		return
	}

	t.st = stateAuthPending

	// The only genuinely blocking call in the system runs off-loop so
	// sibling connections keep making progress. The verdict comes back
	// as an authDone event before any registry access.
	register := frame.Kind == wire.KindRegister
	go func() {
		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.AuthTimeout)
		defer cancel()

		var verdict auth.Result
		if register {
			verdict = d.gateway.Register(ctx, creds.Username, creds.Password)
		} else {
			verdict = d.gateway.Login(ctx, creds.Username, creds.Password)
		}
		post(d.ctx, d.inbox, authDone{id: t.c.id, username: creds.Username, verdict: verdict})
	}()
}

// handleAuthDone finishes the handshake: reject and close, or mint a
// token, admit, answer, snapshot the roster for the joiner and announce
// the join to everyone else.
func (d *Dispatcher) handleAuthDone(ev authDone) {
	t, ok := d.conns[ev.id]
	if !ok {
		return // peer vanished while the verdict was in flight
	}

	if !ev.verdict.Success {
		t.c.send(wire.KindAuthResult, wire.AuthResult{Success: false, Reason: ev.verdict.Reason})
		t.c.log.Info("auth rejected", "username", ev.username, "reason", ev.verdict.Reason)
		d.drop(ev.id)
		return
	}

	token, err := auth.MintToken()
	if err != nil {
		t.c.log.Error("token minting failed", "error", err)
		t.c.send(wire.KindAuthResult, wire.AuthResult{Success: false, Reason: auth.ReasonStoreDown})
		d.drop(ev.id)
		return
	}

	session := &domain.Session{
		ConnID:   ev.id,
		Username: ev.username,
		Token:    token,
		Color:    domain.RandomColor(),
	}
	if err := d.registry.Admit(session); err != nil {
		// Same username is already online; the live session wins.
		t.c.send(wire.KindAuthResult, wire.AuthResult{Success: false, Reason: auth.ReasonUsernameTaken})
		t.c.log.Info("admission rejected", "username", ev.username, "error", err)
		d.drop(ev.id)
		return
	}
	t.st = stateActive

	t.c.send(wire.KindAuthResult, wire.AuthResult{
		Success: true,
		Reason:  ev.verdict.Reason,
		Token:   token,
	})
	t.c.send(wire.KindPresenceSet, d.rosterExcept(ev.id))
	d.broadcastPresence(wire.KindPresenceAdded, session.Presence(), ev.id)

	t.c.log.Info("session admitted", "username", session.Username, "online", d.registry.Len())
}

// handleActive routes frames from admitted sessions. Only CHAT exists
// today; unknown kinds are ignored and the connection lives on.
func (d *Dispatcher) handleActive(t *tracked, frame *wire.Frame) {
	if frame.Kind != wire.KindChat {
		t.c.log.Warn("unknown frame kind, ignoring", "kind", frame.Kind)
		return
	}

	session, ok := d.registry.Lookup(t.c.id)
	if !ok {
		return
	}

	var chat wire.ChatRequest
	if err := d.framer.DecodePayload(frame, &chat); err != nil {
		t.c.log.Warn("malformed chat payload, dropping", "error", err)
		return
	}
	// Wrong token smells like spoofing or a stale client; drop silently,
	// no hint back to the peer.
	if chat.Token != session.Token {
		t.c.log.Warn("chat token mismatch, dropping", "username", session.Username)
		return
	}
	if chat.Message == "" {
		t.c.log.Debug("empty chat message, dropping", "username", session.Username)
		return
	}

	// Identity comes from the session, never from the payload.
	event := wire.ChatEvent{
		Username: session.Username,
		Message:  d.censor(chat.Message),
		Color:    session.Color,
	}
	for _, peer := range d.registry.All() {
		if pt, ok := d.conns[peer.ConnID]; ok {
			pt.c.send(wire.KindChat, event)
		}
	}
}

// handleClosed finishes the Active→Closed (or AwaitingAuth→Closed)
// transition: stop tracking, free the registry slot, tell the others.
func (d *Dispatcher) handleClosed(id domain.ConnID, reason error) {
	t, ok := d.conns[id]
	if !ok {
		return
	}
	t.c.log.Debug("connection closed", "reason", reason)

	d.drop(id)
	if session := d.registry.Remove(id); session != nil {
		d.broadcastPresence(wire.KindPresenceRemoved, session.Presence(), id)
		d.log.Info("session removed", "username", session.Username, "online", d.registry.Len())
	}
}

// drop stops tracking a connection and lets the write pump flush and
// close the socket. It does not touch the registry.
func (d *Dispatcher) drop(id domain.ConnID) {
	if t, ok := d.conns[id]; ok {
		delete(d.conns, id)
		t.c.close()
	}
}

// broadcastPresence fans one presence delta out to every live session
// except the subject itself. The roster snapshot is taken at call time;
// connections admitted or removed mid-fanout catch up on the next delta.
func (d *Dispatcher) broadcastPresence(kind wire.Kind, record domain.PresenceRecord, except domain.ConnID) {
	payload := []wire.Presence{toWirePresence(record)}
	for _, peer := range d.registry.All() {
		if peer.ConnID == except {
			continue
		}
		if pt, ok := d.conns[peer.ConnID]; ok {
			pt.c.send(kind, payload)
		}
	}
}

// rosterExcept builds the joiner's initial presence snapshot: everyone
// but themselves, tokens stripped.
func (d *Dispatcher) rosterExcept(id domain.ConnID) []wire.Presence {
	peers := lo.Filter(d.registry.All(), func(s *domain.Session, _ int) bool {
		return s.ConnID != id
	})
	return lo.Map(peers, func(s *domain.Session, _ int) wire.Presence {
		return toWirePresence(s.Presence())
	})
}

func (d *Dispatcher) censor(message string) string {
	if d.moderator == nil {
		return message
	}
	return d.moderator.Censor(message)
}

func toWirePresence(r domain.PresenceRecord) wire.Presence {
	return wire.Presence{Username: r.Username, Color: r.Color}
}
