// Package key provides API key value types and pure functions.
// This package has NO dependencies on I/O or external packages.
package key

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SecretBytes is the number of random bytes in a raw key (256 bits).
const SecretBytes = 32

// Key represents a stored API key (immutable value type).
// The raw secret is never part of this struct.
type Key struct {
	ID        string
	UserID    string
	Name      string
	Hash      string   // hex digest of the full raw key
	Scopes    []string // opaque capability tags, not interpreted here
	RevokedAt *time.Time
	CreatedAt time.Time
	LastUsed  *time.Time
}

// Issued is the result of issuing a key: the raw secret for the caller
// and its hash for storage.
type Issued struct {
	Raw  string
	Hash string
}

// ValidationResult represents the outcome of key validation (value type).
type ValidationResult struct {
	Valid  bool
	Key    Key    // Populated only if Valid=true
	Reason string // Populated only if Valid=false
}

// Reasons for validation failure.
const (
	ReasonValid   = ""
	ReasonMissing = "missing_credential"
	ReasonInvalid = "invalid_credential"
	ReasonRevoked = "key_revoked"
)

// Format builds the bearer token wire form: <prefix>_<hex secret>.
// Any prefix is accepted, including the empty string.
func Format(prefix string, secret []byte) string {
	return prefix + "_" + hex.EncodeToString(secret)
}

// HashOf returns the hex-encoded SHA-256 digest of a raw key.
// This is a PURE function.
func HashOf(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue formats a raw key from secret and hashes it with hashFn.
// This is a PURE function.
func Issue(prefix string, secret []byte, hashFn func(string) string) Issued {
	raw := Format(prefix, secret)
	return Issued{Raw: raw, Hash: hashFn(raw)}
}

// Validate checks whether a stored key may authenticate.
// A revoked key never authenticates.
// This is a PURE function.
func Validate(k Key) ValidationResult {
	if k.RevokedAt != nil {
		return ValidationResult{Reason: ReasonRevoked}
	}
	return ValidationResult{Valid: true, Key: k}
}

// ParseBearer extracts the token from an Authorization header value.
// Returns "" when the header is empty or not a bearer credential.
func ParseBearer(header string) string {
	const scheme = "bearer "
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return ""
	}
	return strings.TrimSpace(header[len(scheme):])
}

// Display returns a short non-secret label for a raw key, for logs and listings.
func Display(raw string) string {
	if len(raw) <= 12 {
		return "****"
	}
	return raw[:12] + "..."
}

// WithUserID returns a copy of the key with the UserID set.
func (k Key) WithUserID(userID string) Key {
	k.UserID = userID
	return k
}

// WithName returns a copy of the key with the Name set.
func (k Key) WithName(name string) Key {
	k.Name = name
	return k
}
