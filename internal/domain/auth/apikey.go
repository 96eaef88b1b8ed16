// Package auth holds client API key verification for the MCP endpoint and
// the auth context forwarded to tool endpoints.
package auth

import (
	"errors"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when a presented API key matches no configured key.
var ErrInvalidKey = errors.New("invalid api key")

// APIKey is one configured client credential. Keys are stored as argon2id
// hashes; the raw key never persists.
type APIKey struct {
	// Name identifies the key in logs and diagnostics.
	Name string
	// Hash is the argon2id hash of the raw key.
	Hash string
}

// HashKey produces an argon2id hash for a raw key, for seeding config.
func HashKey(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2id.DefaultParams)
}

// Verifier checks presented API keys against the configured set.
// An empty set means authentication is disabled and every key verifies.
type Verifier struct {
	keys []APIKey
}

// NewVerifier creates a verifier over the configured keys.
func NewVerifier(keys []APIKey) *Verifier {
	return &Verifier{keys: keys}
}

// Enabled reports whether any keys are configured.
func (v *Verifier) Enabled() bool {
	return len(v.keys) > 0
}

// Verify returns the matching key's name. When no keys are configured it
// accepts any caller with an empty name. Returns ErrInvalidKey otherwise.
func (v *Verifier) Verify(rawKey string) (string, error) {
	if !v.Enabled() {
		return "", nil
	}
	for i := range v.keys {
		match, err := argon2id.ComparePasswordAndHash(rawKey, v.keys[i].Hash)
		if err != nil {
			continue
		}
		if match {
			return v.keys[i].Name, nil
		}
	}
	return "", ErrInvalidKey
}
