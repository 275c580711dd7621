package auth_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/mocks"
)

func newGateway(t *testing.T) (*auth.Gateway, *mocks.MockStore) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	log := slog.New(slog.DiscardHandler)
	return auth.NewGateway(log, store, auth.DefaultPolicy()), store
}

func TestGateway_Register_Success(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gateway, store := newGateway(t)

	// Given the username is free
	store.EXPECT().Exists(ctx, "alice").Return(false, nil)
	// Then the stored credential is the digest, not the raw password
	store.EXPECT().Create(ctx, "alice", auth.Digest("secret1")).Return(nil)

	// When alice registers
	result := gateway.Register(ctx, "alice", "secret1")

	req.True(result.Success)
	req.Equal(auth.ReasonUserCreated, result.Reason)
}

func TestGateway_Register_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		username   string
		password   string
		setup      func(store *mocks.MockStore)
		wantReason string
	}{
		{
			name:     "username already taken",
			username: "alice", password: "secret1",
			setup: func(store *mocks.MockStore) {
				store.EXPECT().Exists(ctx, "alice").Return(true, nil)
			},
			wantReason: auth.ReasonUsernameTaken,
		},
		{
			name:     "username too short",
			username: "al", password: "secret1",
			setup: func(store *mocks.MockStore) {
				store.EXPECT().Exists(ctx, "al").Return(false, nil)
			},
			wantReason: "Username needs to be at least 4 characters",
		},
		{
			name:     "password too short advertises the public minimum",
			username: "alice", password: "abc",
			setup: func(store *mocks.MockStore) {
				store.EXPECT().Exists(ctx, "alice").Return(false, nil)
			},
			wantReason: "Password needs to be at least 8 characters",
		},
		{
			name:     "store unreachable",
			username: "alice", password: "secret1",
			setup: func(store *mocks.MockStore) {
				store.EXPECT().Exists(ctx, "alice").
					Return(false, fmt.Errorf("%w: dial tcp", errors.ErrStoreUnavailable))
			},
			wantReason: auth.ReasonStoreDown,
		},
		{
			name:     "creation race surfaces as taken",
			username: "alice", password: "secret1",
			setup: func(store *mocks.MockStore) {
				store.EXPECT().Exists(ctx, "alice").Return(false, nil)
				store.EXPECT().Create(ctx, "alice", gomock.Any()).
					Return(errors.ErrUserAlreadyExists)
			},
			wantReason: auth.ReasonUsernameTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			gateway, store := newGateway(t)
			tt.setup(store)

			result := gateway.Register(ctx, tt.username, tt.password)

			req.False(result.Success)
			req.Equal(tt.wantReason, result.Reason)
		})
	}
}

func TestGateway_Login(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		match      bool
		err        error
		wantOK     bool
		wantReason string
	}{
		{"matching pair", true, nil, true, auth.ReasonAccessGranted},
		{"wrong credentials", false, nil, false, auth.ReasonBadLogin},
		{"store down", false, errors.ErrStoreUnavailable, false, auth.ReasonStoreDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			gateway, store := newGateway(t)

			store.EXPECT().Match(ctx, "alice", auth.Digest("secret1")).
				Return(tt.match, tt.err)

			result := gateway.Login(ctx, "alice", "secret1")

			req.Equal(tt.wantOK, result.Success)
			req.Equal(tt.wantReason, result.Reason)
		})
	}
}
