package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/wire"
)

// conn wraps one accepted socket. The read pump decodes frames and
// posts them to the dispatcher inbox; the write pump drains the
// outbound queue. The dispatcher is the only goroutine that enqueues
// outbound frames or initiates close, which keeps the close(out)
// handoff race-free.
type conn struct {
	id     domain.ConnID
	nc     net.Conn
	log    *slog.Logger
	framer *wire.Framer

	out          chan []byte
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newConn(id domain.ConnID, nc net.Conn, log *slog.Logger, framer *wire.Framer,
	bufferSize int, writeTimeout time.Duration) *conn {
	return &conn{
		id:           id,
		nc:           nc,
		log:          log.With("conn_id", id, "peer", nc.RemoteAddr().String()),
		framer:       framer,
		out:          make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
	}
}

// readLoop feeds socket bytes through the frame decoder and posts every
// complete frame to the inbox. It exits on EOF, read error, or a
// poisoned stream, always posting exactly one connClosed last.
// Posting honors ctx so readers never outlive the dispatcher.
func (c *conn) readLoop(ctx context.Context, inbox chan<- dispatchEvent) {
	dec := wire.NewDecoder()
	buf := make([]byte, 4096)

	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				frame, decErr := dec.Next()
				if decErr != nil {
					// Unparsable prefix: no way to resynchronize the stream.
					post(ctx, inbox, connClosed{id: c.id, reason: decErr})
					return
				}
				if frame == nil {
					break
				}
				if !post(ctx, inbox, frameReceived{id: c.id, frame: frame}) {
					return
				}
			}
		}
		if err != nil {
			post(ctx, inbox, connClosed{id: c.id, reason: closeReason(err, dec)})
			return
		}
	}
}

func closeReason(err error, dec *wire.Decoder) error {
	if err != io.EOF {
		return err
	}
	if dec.Buffered() > 0 {
		return fmt.Errorf("%w mid-frame, %d bytes pending", errors.ErrPeerClosed, dec.Buffered())
	}
	return errors.ErrPeerClosed
}

// writeLoop drains the outbound queue until close initiates shutdown,
// then closes the socket. Queued frames are flushed first, so an auth
// rejection reaches the peer before the connection drops.
func (c *conn) writeLoop() {
	defer c.nc.Close()

	for data := range c.out {
		if c.writeTimeout > 0 {
			_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if _, err := c.nc.Write(data); err != nil {
			c.log.Warn("write failed, dropping connection", "error", err)
			return
		}
	}
}

// send encodes and enqueues one frame without blocking. A full queue
// drops the frame: a peer too slow to drain its own broadcasts loses
// them rather than stalling the loop.
func (c *conn) send(kind wire.Kind, payload any) {
	data, err := c.framer.Encode(kind, payload)
	if err != nil {
		c.log.Error("frame encoding failed", "kind", kind, "error", err)
		return
	}
	select {
	case c.out <- data:
	default:
		c.log.Warn("outbound queue full, dropping frame", "kind", kind)
	}
}

// close hands the socket to the write pump for flush-then-close.
// Idempotent; only the dispatcher calls it.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.out)
	})
}

// post delivers an event unless the dispatcher has already stopped.
func post(ctx context.Context, inbox chan<- dispatchEvent, ev dispatchEvent) bool {
	select {
	case inbox <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
