package types

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns 10 hex characters derived from a cryptographically random
// source (spec.md §3: session and message identifiers).
func NewID() string {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("types: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
