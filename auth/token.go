package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes gives 128 bits of entropy, enough that collisions between
// live sessions are not a practical concern.
const tokenBytes = 16

// MintToken creates an opaque per-session secret. It carries no
// structure and is only ever compared for equality against the owning
// session's copy.
func MintToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("minting session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
