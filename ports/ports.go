// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/domain/key"
	"github.com/westsidetechsolutions/meter/domain/usage"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a create collides with an existing record.
	ErrConflict = errors.New("already exists")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Random abstracts randomness for testability.
type Random interface {
	// Bytes generates n random bytes.
	Bytes(n int) ([]byte, error)
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher produces the deterministic one-way digest stored for API keys.
// The same function must be used at issuance and at verification.
type Hasher interface {
	Hash(raw string) string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// KeyStore persists API keys. Raw secrets are never passed to a KeyStore.
type KeyStore interface {
	// Create stores a new key.
	Create(ctx context.Context, k key.Key) error

	// Get retrieves a key by ID.
	Get(ctx context.Context, id string) (key.Key, error)

	// GetActiveByHash retrieves the unrevoked key with the given hash.
	// Returns ErrNotFound when no such key exists.
	GetActiveByHash(ctx context.Context, hash string) (key.Key, error)

	// Revoke marks a key as revoked. Revoking an already revoked key keeps
	// the original revocation time.
	Revoke(ctx context.Context, id string, at time.Time) error

	// ListByUser returns all keys for a user.
	ListByUser(ctx context.Context, userID string) ([]key.Key, error)

	// UpdateLastUsed updates the last used timestamp.
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
}

// UsageStore persists per-period usage records.
// Implementations enforce uniqueness of (userID, start, end) and apply
// increments atomically.
type UsageStore interface {
	// GetOrCreate returns the record for the period, creating a zeroed one
	// if none exists. Repeated calls never create duplicates.
	GetOrCreate(ctx context.Context, userID string, start, end time.Time) (usage.Record, error)

	// Increment adds amount to field on the period's record, creating the
	// record if needed, and returns the post-increment record.
	Increment(ctx context.Context, userID string, start, end time.Time, field usage.Field, amount int64) (usage.Record, error)

	// FindCovering returns the user's record whose period contains at.
	// Returns ErrNotFound when there is none.
	FindCovering(ctx context.Context, userID string, at time.Time) (usage.Record, error)

	// ListByUser returns a user's records, newest period first.
	ListByUser(ctx context.Context, userID string) ([]usage.Record, error)
}

// SubscriberStore provides the billing view of users.
type SubscriberStore interface {
	// Get retrieves a subscriber by ID.
	Get(ctx context.Context, id string) (billing.Subscriber, error)

	// Upsert creates or replaces a subscriber.
	Upsert(ctx context.Context, s billing.Subscriber) error
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// AdmissionObserver receives admission outcomes (metrics).
type AdmissionObserver interface {
	// Admitted records an admitted request for a field and plan.
	Admitted(field usage.Field, planID string)

	// Denied records a denied request with its reason code.
	Denied(field usage.Field, reason string)

	// StoreError records a storage failure during an operation.
	StoreError(op string)
}
