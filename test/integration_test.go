package test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/auth"
	"chat-relay/client"
	"chat-relay/credentials"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/runtime"
	"chat-relay/wire"
)

// credService is an in-process restdb-style credential service: GET
// with a q= JSON query for lookups, POST for creation, API key on
// every request. It backs the relay through an HTTPStore so the whole
// network path from handshake to remote lookup is under test.
type credService struct {
	mu    sync.Mutex
	users map[string]string
}

func (s *credService) handler(t *testing.T, apiKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-apikey") != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.lookup(t, w, r)
		case http.MethodPost:
			s.create(t, w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func (s *credService) lookup(t *testing.T, w http.ResponseWriter, r *http.Request) {
	var q struct {
		Username string              `json:"username"`
		And      []map[string]string `json:"$and"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("q")), &q))

	username, digest := q.Username, ""
	for _, clause := range q.And {
		if v, ok := clause["username"]; ok {
			username = v
		}
		if v, ok := clause["password"]; ok {
			digest = v
		}
	}

	s.mu.Lock()
	stored, found := s.users[username]
	s.mu.Unlock()

	results := []map[string]string{}
	if found && (digest == "" || stored == digest) {
		results = append(results, map[string]string{"username": username})
	}
	require.NoError(t, json.NewEncoder(w).Encode(results))
}

func (s *credService) create(t *testing.T, w http.ResponseWriter, r *http.Request) {
	var rec struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[rec.Username]; ok {
		w.WriteHeader(http.StatusConflict)
		return
	}
	s.users[rec.Username] = rec.Password
	w.WriteHeader(http.StatusCreated)
}

// startStack wires the full production composition: HTTP credential
// service, HTTPStore, gateway, moderator, dispatcher, listener, all
// under the supervisor. It returns the relay's dial address.
func startStack(t *testing.T) string {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	const apiKey = "integration-key"

	service := &credService{users: make(map[string]string)}
	credSrv := httptest.NewServer(service.handler(t, apiKey))
	t.Cleanup(credSrv.Close)

	store := credentials.NewHTTPStore(log, credSrv.URL, apiKey, 2*time.Second)
	gateway := auth.NewGateway(log, store, auth.DefaultPolicy())

	words, err := moderation.DefaultWords()
	require.NoError(t, err)
	moderator, err := moderation.NewModerator(words, '*')
	require.NoError(t, err)

	dispatcher := runtime.NewDispatcher(log, gateway, runtime.NewRegistry(), wire.NewFramer(nil), moderator, runtime.DispatcherConfig{
		InboxSize:      64,
		ConnBufferSize: 16,
		WriteTimeout:   time.Second,
		AuthTimeout:    2 * time.Second,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	sup := runtime.NewSupervisor(log, 10*time.Millisecond).
		Add(dispatcher, runtime.NewListener(log, ln, dispatcher))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func connect(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.Dial(slog.New(slog.DiscardHandler), addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func nextEvent(t *testing.T, c *client.Client) client.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "events channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func Test_Scenario(t *testing.T) {
	require := require.New(t)
	addr := startStack(t)

	// 1. A new user registers through the remote credential service
	alice := connect(t, addr)
	result, err := alice.Register("alice42", "secret-pw")
	require.NoError(err)
	require.True(result.Success)
	require.Equal("User successfully created", result.Reason)
	require.NotEmpty(alice.Token())

	// 2. Alice's first roster is empty, she is alone
	snapshot, ok := nextEvent(t, alice).(client.RosterSnapshot)
	require.True(ok)
	require.Empty(snapshot.Users)

	// 3. A second user registers; Alice is told he joined
	bob := connect(t, addr)
	result, err = bob.Register("bob4242", "hunter22")
	require.NoError(err)
	require.True(result.Success)

	joined, ok := nextEvent(t, alice).(client.PeersJoined)
	require.True(ok)
	require.Len(joined.Users, 1)
	require.Equal("bob4242", joined.Users[0].Username)

	// 4. Bob reconnects via login; his snapshot shows Alice, and Alice
	// sees him leave then rejoin
	require.NoError(bob.Close())
	left, ok := nextEvent(t, alice).(client.PeersLeft)
	require.True(ok)
	require.Equal("bob4242", left.Users[0].Username)

	bob = connect(t, addr)
	result, err = bob.Login("bob4242", "hunter22")
	require.NoError(err)
	require.True(result.Success)
	require.Equal("Access granted", result.Reason)

	snap, ok := nextEvent(t, bob).(client.RosterSnapshot)
	require.True(ok)
	require.Len(snap.Users, 1)
	require.Equal("alice42", snap.Users[0].Username)
	require.NotEmpty(snap.Users[0].Color)

	joined, ok = nextEvent(t, alice).(client.PeersJoined)
	require.True(ok)
	require.Equal("bob4242", joined.Users[0].Username)

	// 5. A chat message reaches both users, censored on the way
	require.NoError(alice.Send("you absolute idiot"))
	for _, c := range []*client.Client{alice, bob} {
		msg, isChat := nextEvent(t, c).(client.ChatMessage)
		require.True(isChat)
		require.Equal("alice42", msg.Username)
		require.Equal("you absolute *****", msg.Message)
		require.NotEmpty(msg.Color)
	}

	// 6. Bob leaves and Alice hears about it
	require.NoError(bob.Close())
	left, ok = nextEvent(t, alice).(client.PeersLeft)
	require.True(ok)
	require.Len(left.Users, 1)
	require.Equal("bob4242", left.Users[0].Username)
}

func Test_LoginRejectionsComeFromTheRemoteStore(t *testing.T) {
	require := require.New(t)
	addr := startStack(t)

	// Given a registered user
	setup := connect(t, addr)
	result, err := setup.Register("carol77", "pass-word")
	require.NoError(err)
	require.True(result.Success)
	require.NoError(setup.Close())

	// When logging in with the wrong password
	c := connect(t, addr)
	result, err = c.Login("carol77", "wrong-pw")

	// Then the handshake fails with the generic credential message
	require.NoError(err)
	require.False(result.Success)
	require.Equal("Bad username or password", result.Reason)
	require.Empty(result.Token)
}

func Test_RegistrationConflictAcrossConnections(t *testing.T) {
	require := require.New(t)
	addr := startStack(t)

	first := connect(t, addr)
	result, err := first.Register("dave1234", "pass-word")
	require.NoError(err)
	require.True(result.Success)

	// A second registration for the same name is refused even though it
	// arrives on a fresh connection.
	second := connect(t, addr)
	result, err = second.Register("dave1234", "other-pw")
	require.NoError(err)
	require.False(result.Success)
	require.Equal("Username already taken", result.Reason)
}

func Test_PolicyRejectionsNeverReachTheStore(t *testing.T) {
	require := require.New(t)
	addr := startStack(t)

	c := connect(t, addr)
	result, err := c.Register("eve9999", "short")
	require.NoError(err)
	require.False(result.Success)
	require.Equal("Password needs to be at least 8 characters", result.Reason)

	// The connection is closed after a failed handshake: a retry needs a
	// fresh dial.
	retry := connect(t, addr)
	result, err = retry.Register("eve9999", "long-enough-pw")
	require.NoError(err)
	require.True(result.Success)
}

func Test_StoreOutageSurfacesConnectionError(t *testing.T) {
	require := require.New(t)
	log := slog.New(slog.DiscardHandler)

	// Given a relay whose credential service is already gone
	credSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	credSrv.Close()
	store := credentials.NewHTTPStore(log, credSrv.URL, "key", time.Second)
	gateway := auth.NewGateway(log, store, auth.DefaultPolicy())
	dispatcher := runtime.NewDispatcher(log, gateway, runtime.NewRegistry(), wire.NewFramer(nil), nil, runtime.DispatcherConfig{
		InboxSize:      64,
		ConnBufferSize: 16,
		WriteTimeout:   time.Second,
		AuthTimeout:    time.Second,
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	sup := runtime.NewSupervisor(log, 10*time.Millisecond).
		Add(dispatcher, runtime.NewListener(log, ln, dispatcher))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// When a client tries to authenticate
	c := connect(t, ln.Addr().String())
	result, err := c.Login("alice42", "secret-pw")

	// Then the outage shows up as the generic connection failure
	require.NoError(err)
	require.False(result.Success)
	require.Equal("connection error", result.Reason)

	// Sanity: the gateway sentinel exists for callers that go direct
	_, storeErr := store.Exists(context.Background(), "alice42")
	require.ErrorIs(storeErr, errors.ErrStoreUnavailable)
}
