package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest hashes a password into the hex digest string shared with the
// credential store. The store only ever sees digests; equality against
// the stored digest is the whole verification contract, which is why a
// salted KDF cannot be used here.
func Digest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
