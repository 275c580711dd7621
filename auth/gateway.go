package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"chat-relay/credentials"
	"chat-relay/errors"
)

// Client-facing reasons. The wording is part of the protocol surface:
// clients display these strings verbatim.
const (
	ReasonAccessGranted = "Access granted"
	ReasonUserCreated   = "User successfully created"
	ReasonBadLogin      = "Bad username or password"
	ReasonUsernameTaken = "Username already taken"
	// ReasonStoreDown is deliberately generic: clients never learn
	// whether the collaborator was down or answered garbage.
	ReasonStoreDown = "connection error"
)

// Result is the gateway's verdict on one auth attempt.
type Result struct {
	Success bool
	Reason  string
}

// Gateway adapts the external credential store for the dispatcher's
// handshake. It owns digesting and policy; token minting stays with the
// dispatcher. Calls may block on the remote store, so the dispatcher
// runs them off its loop.
type Gateway struct {
	store  credentials.Store
	policy Policy
	log    *slog.Logger
}

// NewGateway wires a gateway over the given store.
func NewGateway(log *slog.Logger, store credentials.Store, policy Policy) *Gateway {
	return &Gateway{store: store, policy: policy, log: log}
}

// Register checks availability and policy, then persists the new
// credential. A store failure is reported once, generically, and never
// retried.
func (g *Gateway) Register(ctx context.Context, username, password string) Result {
	taken, err := g.store.Exists(ctx, username)
	if err != nil {
		g.log.Error("credential store lookup failed", "username", username, "error", err)
		return Result{Success: false, Reason: ReasonStoreDown}
	}
	if taken {
		return Result{Success: false, Reason: ReasonUsernameTaken}
	}

	if err := g.policy.CheckUsername(username); err != nil {
		return Result{Success: false, Reason: fmt.Sprintf(
			"Username needs to be at least %d characters", g.policy.MinUsernameLen)}
	}
	if err := g.policy.CheckPassword(password); err != nil {
		return Result{Success: false, Reason: fmt.Sprintf(
			"Password needs to be at least %d characters", g.policy.AdvertisedPasswordLen)}
	}

	if err := g.store.Create(ctx, username, Digest(password)); err != nil {
		if stderrors.Is(err, errors.ErrUserAlreadyExists) {
			// Lost the race against a concurrent registration.
			return Result{Success: false, Reason: ReasonUsernameTaken}
		}
		g.log.Error("credential store create failed", "username", username, "error", err)
		return Result{Success: false, Reason: ReasonStoreDown}
	}
	return Result{Success: true, Reason: ReasonUserCreated}
}

// Login succeeds iff the store holds the exact (username, digest) pair.
// The failure reason never distinguishes a wrong password from an
// unknown user.
func (g *Gateway) Login(ctx context.Context, username, password string) Result {
	ok, err := g.store.Match(ctx, username, Digest(password))
	if err != nil {
		g.log.Error("credential store match failed", "username", username, "error", err)
		return Result{Success: false, Reason: ReasonStoreDown}
	}
	if !ok {
		return Result{Success: false, Reason: ReasonBadLogin}
	}
	return Result{Success: true, Reason: ReasonAccessGranted}
}
