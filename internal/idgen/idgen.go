// Package idgen generates random identifiers for signals and requests.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// SignalPrefix marks signal IDs in the log and on the websocket feed.
const SignalPrefix = "sig_"

// Hex returns numBytes of crypto/rand output, hex encoded.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: crypto/rand: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// WithPrefix returns prefix followed by 24 random hex characters.
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}

// Signal returns a new signal ID.
func Signal() string {
	return WithPrefix(SignalPrefix)
}

// RequestID returns a new request ID for the X-Request-ID header.
func RequestID() string {
	return Hex(16)
}
