// Package sha256 derives stable archive keys for resolved links.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher derives archive object names from URLs.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Key returns the hex digest of a URL, used as its archive object name.
func (h *Hasher) Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
