// Command credserver is a stand-alone credential service speaking the
// same REST dialect the relay's HTTP store expects: GET with a JSON
// query parameter, POST to create, an API key header. It exists so the
// relay can run against a service boundary without a hosted database.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"chat-relay/credentials"
	"chat-relay/errors"
	"chat-relay/internal"
)

type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8090"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	DBPath   string `env:"CREDENTIAL_DB_PATH,default=./data/credserver"`
	// APIKey is optional; when set, every request must carry it in the
	// x-apikey header.
	APIKey string `env:"CREDENTIAL_API_KEY"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.LoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.DBPath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing credential database...")
		_ = db.Close()
	}()

	handler := &handler{
		store:  credentials.NewBadgerStore(db),
		apiKey: config.APIKey,
		log:    log,
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	server := &http.Server{
		Handler:           handler.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("credential service starting", "address", address)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	log.Info("Program stopped cleanly")
	return nil
}

type handler struct {
	store  credentials.Store
	apiKey string
	log    *slog.Logger
}

func (h *handler) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/credentials", h.auth(h.lookup))
	mux.HandleFunc("POST /rest/credentials", h.auth(h.create))
	return mux
}

func (h *handler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" && r.Header.Get("x-apikey") != h.apiKey {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// query mirrors the two lookup shapes the relay sends: a bare username
// check, or an $and of username and password digest.
type query struct {
	Username string              `json:"username"`
	And      []map[string]string `json:"$and"`
}

func (q query) fields() (username, digest string) {
	username = q.Username
	for _, clause := range q.And {
		if v, ok := clause["username"]; ok {
			username = v
		}
		if v, ok := clause["password"]; ok {
			digest = v
		}
	}
	return username, digest
}

func (h *handler) lookup(w http.ResponseWriter, r *http.Request) {
	var q query
	if err := json.Unmarshal([]byte(r.URL.Query().Get("q")), &q); err != nil {
		http.Error(w, "bad query", http.StatusBadRequest)
		return
	}
	username, digest := q.fields()
	if username == "" {
		http.Error(w, "bad query", http.StatusBadRequest)
		return
	}

	var found bool
	var err error
	if digest == "" {
		found, err = h.store.Exists(r.Context(), username)
	} else {
		found, err = h.store.Match(r.Context(), username, digest)
	}
	if err != nil {
		h.log.Error("lookup failed", "username", username, "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	// The result set is the whole contract: empty means no match.
	results := []map[string]string{}
	if found {
		results = append(results, map[string]string{"username": username})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	err := h.store.Create(r.Context(), body.Username, body.Password)
	if stderrors.Is(err, errors.ErrUserAlreadyExists) {
		http.Error(w, "username already taken", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error("create failed", "username", body.Username, "error", err)
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}

	h.log.Info("credential created", "username", body.Username)
	w.WriteHeader(http.StatusCreated)
}
