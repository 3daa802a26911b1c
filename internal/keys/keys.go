// ABOUTME: Gateway API key generation, hashing, and format validation
// ABOUTME: Keys are gw_ + 48 hex chars; only the SHA-256 hash is ever persisted

package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// Prefix identifies gateway keys in logs and config.
	Prefix = "gw_"

	secretBytes = 24

	// DisplayPrefixLen is how much of the key is kept for display:
	// the gw_ prefix plus the first 8 hex chars.
	DisplayPrefixLen = 11
)

// ErrInvalidFormat is returned for credentials that are not well-formed
// gateway keys. Format checks happen before any store lookup so malformed
// input never reaches the database.
var ErrInvalidFormat = errors.New("invalid key format")

// Generated holds a freshly created key. Plaintext exists only in this
// struct; callers show it once and persist only Hash and DisplayPrefix.
type Generated struct {
	Plaintext     string
	Hash          string
	DisplayPrefix string
}

// Generate creates a new random gateway key.
func Generate() (*Generated, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating key material: %w", err)
	}

	plaintext := Prefix + hex.EncodeToString(buf)
	return &Generated{
		Plaintext:     plaintext,
		Hash:          Hash(plaintext),
		DisplayPrefix: plaintext[:DisplayPrefixLen],
	}, nil
}

// Hash returns the hex-encoded SHA-256 of a plaintext key.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ValidateFormat checks that a credential looks like a gateway key: the gw_
// prefix followed by exactly 48 hex characters.
func ValidateFormat(plaintext string) error {
	if !strings.HasPrefix(plaintext, Prefix) {
		return ErrInvalidFormat
	}
	rest := plaintext[len(Prefix):]
	if len(rest) != secretBytes*2 {
		return ErrInvalidFormat
	}
	if _, err := hex.DecodeString(rest); err != nil {
		return ErrInvalidFormat
	}
	return nil
}
