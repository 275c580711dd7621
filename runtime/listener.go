package runtime

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"time"
)

// Listener accepts connections and hands them to the dispatcher. The
// net.Listener is bound by the caller before supervision starts, so a
// bind failure aborts startup loudly instead of looping through
// restarts.
type Listener struct {
	log        *slog.Logger
	ln         net.Listener
	dispatcher *Dispatcher
}

// NewListener wraps an already bound listener.
func NewListener(log *slog.Logger, ln net.Listener, dispatcher *Dispatcher) *Listener {
	return &Listener{log: log, ln: ln, dispatcher: dispatcher}
}

// Run accepts until the context is cancelled. Transient accept errors
// are logged and retried with a short pause; a closed listener ends the
// loop cleanly.
func (l *Listener) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	l.log.Info("accepting connections", "address", l.ln.Addr().String())
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			l.log.Warn("accept failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		l.dispatcher.Attach(ctx, nc)
	}
}
