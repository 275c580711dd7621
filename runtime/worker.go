// Package runtime is the relay's connection multiplexer: the listener,
// the dispatcher event loop, the session registry, and the supervisor
// that keeps them running. It routes frames and owns lifecycle; the
// rules it enforces live in auth, wire and domain.
package runtime

import (
	"context"
	"reflect"
)

// Worker is a supervised long-running task. A worker does not protect
// itself; the supervisor handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerName derives a display name from the worker's type, for logs
// and supervision, so workers don't carry names by hand.
func WorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
