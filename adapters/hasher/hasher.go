// Package hasher provides API key digest implementations.
package hasher

import (
	"encoding/hex"
	"fmt"

	"github.com/westsidetechsolutions/meter/domain/key"
	"github.com/westsidetechsolutions/meter/ports"
	"golang.org/x/crypto/sha3"
)

// Supported algorithm names.
const (
	AlgSHA256  = "sha256"
	AlgSHA3256 = "sha3-256"
)

// SHA256 hashes keys with SHA-256.
type SHA256 struct{}

// Hash returns the hex SHA-256 digest.
func (SHA256) Hash(raw string) string {
	return key.HashOf(raw)
}

// SHA3 hashes keys with SHA3-256.
type SHA3 struct{}

// Hash returns the hex SHA3-256 digest.
func (SHA3) Hash(raw string) string {
	sum := sha3.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// New returns the hasher for an algorithm name. Empty selects SHA-256.
func New(alg string) (ports.Hasher, error) {
	switch alg {
	case "", AlgSHA256:
		return SHA256{}, nil
	case AlgSHA3256:
		return SHA3{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", alg)
	}
}

// Ensure interface compliance.
var (
	_ ports.Hasher = SHA256{}
	_ ports.Hasher = SHA3{}
)

// Fake provides a reversible hasher for testing (NOT FOR PRODUCTION).
type Fake struct{}

// Hash returns a labelled copy of the input.
func (Fake) Hash(raw string) string {
	return "fake:" + raw
}

// Ensure interface compliance.
var _ ports.Hasher = Fake{}
