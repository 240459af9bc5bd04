// Package random provides Random implementations.
package random

import (
	"crypto/rand"
	"sync"

	"github.com/westsidetechsolutions/meter/ports"
)

// Real uses crypto/rand for secure randomness.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Fake provides deterministic randomness for testing.
type Fake struct {
	mu      sync.Mutex
	counter int
	values  [][]byte // Preset values to return
	index   int
	err     error
}

// NewFake creates a fake random source.
func NewFake() *Fake {
	return &Fake{}
}

// WithValues sets preset byte values to return.
func (f *Fake) WithValues(values ...[]byte) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = values
	f.index = 0
	return f
}

// WithError makes every call fail with err.
func (f *Fake) WithError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// Bytes returns preset bytes or deterministic bytes based on a counter.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	result := make([]byte, n)
	if f.index < len(f.values) {
		copy(result, f.values[f.index])
		f.index++
		return result, nil
	}

	f.counter++
	for i := range result {
		result[i] = byte((f.counter + i) % 256)
	}
	return result, nil
}

// Ensure interface compliance.
var (
	_ ports.Random = Real{}
	_ ports.Random = (*Fake)(nil)
)
