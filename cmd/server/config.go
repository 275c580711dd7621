package main

import (
	"fmt"
	"time"
)

// Config is the relay server environment. CREDENTIAL_SERVICE_URL selects
// the remote credential collaborator; when unset the relay falls back to
// a local Badger store at CREDENTIAL_DB_PATH.
type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=1234"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	EventBufferSize      int           `env:"EVENT_BUFFER_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	AuthTimeout          time.Duration `env:"AUTH_TIMEOUT,default=10s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	CredentialServiceURL string        `env:"CREDENTIAL_SERVICE_URL"`
	CredentialAPIKey     string        `env:"CREDENTIAL_API_KEY"`
	CredentialTimeout    time.Duration `env:"CREDENTIAL_TIMEOUT,default=5s"`
	CredentialDBPath     string        `env:"CREDENTIAL_DB_PATH,default=./data/credentials"`

	// The enforced and advertised password minimums are independent on
	// purpose; see auth.Policy.
	MinUsernameLength        int `env:"MIN_USERNAME_LENGTH,default=4"`
	MinPasswordLength        int `env:"MIN_PASSWORD_LENGTH,default=6"`
	AdvertisedPasswordLength int `env:"ADVERTISED_PASSWORD_LENGTH,default=8"`

	ModerationEnabled bool   `env:"MODERATION_ENABLED,default=true"`
	ModerationMask    string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
}

// MaskRune converts the configured replacement into a single rune.
func (c Config) MaskRune() (rune, error) {
	r := []rune(c.ModerationMask)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			c.ModerationMask,
		)
	}
	return r[0], nil
}
