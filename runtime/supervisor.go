package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-relay/errors"
)

const defaultRestartDelay = 200 * time.Millisecond

// Supervisor runs each worker in its own goroutine, recovers panics,
// and restarts crashed workers after a short delay. A worker that
// returns nil is finished and never restarted. Cancelling the context
// stops everything; Run waits for all goroutines to exit.
type Supervisor struct {
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	log          *slog.Logger
	restartDelay time.Duration
	workers      []Worker
}

// NewSupervisor builds an empty supervisor. A non-positive restartDelay
// falls back to the default.
func NewSupervisor(log *slog.Logger, restartDelay time.Duration) *Supervisor {
	if restartDelay <= 0 {
		restartDelay = defaultRestartDelay
	}
	return &Supervisor{log: log, restartDelay: restartDelay}
}

// Add queues workers to start when Run is called.
func (s *Supervisor) Add(workers ...Worker) *Supervisor {
	s.workers = append(s.workers, workers...)
	return s
}

// Run starts every added worker under a supervised child context and
// blocks until all of them have exited.
func (s *Supervisor) Run(ctx context.Context) {
	supervised, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	for _, w := range s.workers {
		s.start(supervised, w)
	}
	s.wg.Wait()
}

// Stop cancels the supervised context. Workers observe it through their
// ctx and wind down; Run returns once they have.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// start supervises one worker. A panic inside Run is recovered and
// treated as a crash; a crash restarts the worker, a clean return or a
// cancelled context ends supervision for it.
func (s *Supervisor) start(ctx context.Context, w Worker) {
	s.wg.Add(1)
	name := WorkerName(w)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info("worker stopping", "name", name)
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("worker panicked", "name", name, "panic", r)
						err = errors.ErrWorkerPanic
					}
				}()
				return w.Run(ctx)
			}()

			if err == nil {
				s.log.Info("worker finished", "name", name)
				return
			}
			if ctx.Err() != nil {
				s.log.Info("worker stopped", "name", name)
				return
			}

			s.log.Warn("worker crashed, restarting", "name", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartDelay):
			}
		}
	}()
}
