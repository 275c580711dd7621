package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"chat-relay/auth"
	"chat-relay/credentials"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/runtime"
	"chat-relay/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so deferred cleanup always executes before
// the process exits.
func run() error {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.LoggerFromString(config.LogLevel)

	// 2. Credential collaborator: remote service, or local Badger store
	// when no URL is configured
	var store credentials.Store
	if config.CredentialServiceURL != "" {
		store = credentials.NewHTTPStore(log, config.CredentialServiceURL,
			config.CredentialAPIKey, config.CredentialTimeout)
		log.Info("using remote credential service", "url", config.CredentialServiceURL)
	} else {
		db, err := badger.Open(badger.DefaultOptions(config.CredentialDBPath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return fmt.Errorf("credential database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing credential database...")
			_ = db.Close()
		}()
		store = credentials.NewBadgerStore(db)
		log.Info("using local credential store", "path", config.CredentialDBPath)
	}

	// 3. Moderation
	var moderator runtime.Moderator
	if config.ModerationEnabled {
		mask, err := config.MaskRune()
		if err != nil {
			return err
		}
		words, err := moderation.DefaultWords()
		if err != nil {
			return fmt.Errorf("loading censored words: %w", err)
		}
		mod, err := moderation.NewModerator(words, mask)
		if err != nil {
			return fmt.Errorf("building moderator: %w", err)
		}
		moderator = mod
		log.Info("moderation enabled", "words", len(words))
	}

	// 4. Core wiring
	policy := auth.Policy{
		MinUsernameLen:        config.MinUsernameLength,
		MinPasswordLen:        config.MinPasswordLength,
		AdvertisedPasswordLen: config.AdvertisedPasswordLength,
	}
	gateway := auth.NewGateway(log, store, policy)
	dispatcher := runtime.NewDispatcher(log, gateway, runtime.NewRegistry(),
		wire.NewFramer(nil), moderator, runtime.DispatcherConfig{
			InboxSize:      config.EventBufferSize,
			ConnBufferSize: config.ConnectionBufferSize,
			WriteTimeout:   config.WriteTimeout,
			AuthTimeout:    config.AuthTimeout,
		})

	// 5. Listener socket. A bind failure is the one fatal startup error.
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	// 6. Signals & supervised run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := runtime.NewSupervisor(log, config.RestartInterval).
		Add(dispatcher, runtime.NewListener(log, listener, dispatcher))

	log.Info("chat relay starting", "address", address)
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
