package domain

import "math/rand/v2"

const hexDigits = "0123456789ABCDEF"

// RandomColor picks a 6 hex digit color tag for a freshly admitted
// session. Display only, so no crypto-grade randomness needed.
func RandomColor() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = hexDigits[rand.IntN(len(hexDigits))]
	}
	return string(b)
}
