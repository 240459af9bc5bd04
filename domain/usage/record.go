// Package usage provides per-period usage counter types and pure functions.
// All functions are pure - no side effects.
package usage

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Field names a usage counter.
type Field string

const (
	FieldAPICalls     Field = "apiCalls"
	FieldItemsCreated Field = "itemsCreated"
	FieldStorageMB    Field = "storageMb"
)

// Fields lists every counter in a stable order.
var Fields = []Field{FieldAPICalls, FieldItemsCreated, FieldStorageMB}

var (
	// ErrUnknownField is returned for a field name that is not a counter.
	ErrUnknownField = errors.New("unknown usage field")
	// ErrNegativeAmount is returned for increments below zero; counters never decrease.
	ErrNegativeAmount = errors.New("negative usage amount")
	// ErrOverflow is returned when an increment would push a counter past MaxInt64.
	ErrOverflow = errors.New("usage counter overflow")
)

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
	return f, nil
}

// Valid reports whether f names a counter.
func (f Field) Valid() bool {
	switch f {
	case FieldAPICalls, FieldItemsCreated, FieldStorageMB:
		return true
	}
	return false
}

// Column returns the snake_case storage column for f.
func (f Field) Column() string {
	switch f {
	case FieldAPICalls:
		return "api_calls"
	case FieldItemsCreated:
		return "items_created"
	case FieldStorageMB:
		return "storage_mb"
	}
	return ""
}

// Record is the usage counter document for one subscriber and one period.
// (UserID, PeriodStart, PeriodEnd) is unique.
type Record struct {
	ID            string
	UserID        string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	APICalls      int64
	ItemsCreated  int64
	StorageMB     int64
	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

// New returns a zeroed record for a period.
func New(id, userID string, start, end, now time.Time) Record {
	return Record{
		ID:            id,
		UserID:        userID,
		PeriodStart:   start,
		PeriodEnd:     end,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// Value returns the counter named by f.
func (r Record) Value(f Field) (int64, bool) {
	switch f {
	case FieldAPICalls:
		return r.APICalls, true
	case FieldItemsCreated:
		return r.ItemsCreated, true
	case FieldStorageMB:
		return r.StorageMB, true
	}
	return 0, false
}

// Add returns a copy of r with amount added to the counter f and
// LastUpdatedAt set to now.
// This is a PURE function.
func Add(r Record, f Field, amount int64, now time.Time) (Record, error) {
	if err := CheckAmount(amount); err != nil {
		return r, err
	}
	current, ok := r.Value(f)
	if !ok {
		return r, fmt.Errorf("%w: %q", ErrUnknownField, string(f))
	}
	if err := CheckAdd(current, amount); err != nil {
		return r, err
	}
	switch f {
	case FieldAPICalls:
		r.APICalls += amount
	case FieldItemsCreated:
		r.ItemsCreated += amount
	case FieldStorageMB:
		r.StorageMB += amount
	}
	r.LastUpdatedAt = now
	return r, nil
}

// CheckAdd rejects an increment that would overflow current.
func CheckAdd(current, amount int64) error {
	if err := CheckAmount(amount); err != nil {
		return err
	}
	if current > MaxBefore(amount) {
		return fmt.Errorf("%w: %d + %d", ErrOverflow, current, amount)
	}
	return nil
}

// MaxBefore returns the largest counter value that can still take amount.
// amount must not be negative.
func MaxBefore(amount int64) int64 {
	return math.MaxInt64 - amount
}

// CheckAmount rejects amounts that would decrease a counter.
// Zero is allowed and only refreshes LastUpdatedAt.
func CheckAmount(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}
	return nil
}

// Key is the composite identity of a record.
type Key struct {
	UserID      string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// KeyOf returns the composite key of r.
func KeyOf(r Record) Key {
	return Key{UserID: r.UserID, PeriodStart: r.PeriodStart, PeriodEnd: r.PeriodEnd}
}

// String renders the key with nanosecond bounds so equal instants in
// different locations produce the same string.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.UserID, k.PeriodStart.UnixNano(), k.PeriodEnd.UnixNano())
}
