// Package id mints identifiers for async ingest jobs.
package id

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns 128 random bits as 32 lowercase hex characters.
func New() string {
	var b [16]byte
	// crypto/rand.Read does not return errors as of Go 1.24.
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
