// Package credentials is the boundary to the credential service. The
// relay only ever sees password digests here; raw passwords stop at the
// auth layer.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package credentials

import "context"

// Store is the external credential collaborator. Reads are idempotent,
// Create is not; callers surface a failed call once and never retry.
type Store interface {
	// Exists reports whether a username is already registered.
	Exists(ctx context.Context, username string) (bool, error)

	// Match reports whether the store holds this exact (username, digest)
	// pair.
	Match(ctx context.Context, username, digest string) (bool, error)

	// Create persists a new credential. Returns ErrUserAlreadyExists when
	// the username is taken.
	Create(ctx context.Context, username, digest string) error
}
