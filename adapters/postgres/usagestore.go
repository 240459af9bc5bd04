package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/westsidetechsolutions/meter/domain/usage"
	"github.com/westsidetechsolutions/meter/ports"
)

const usageColumns = `id, user_id, period_start, period_end, api_calls, items_created, storage_mb, created_at, last_updated_at`

// UsageStore implements ports.UsageStore using PostgreSQL.
type UsageStore struct {
	db    *sql.DB
	clock ports.Clock
	ids   ports.IDGenerator
}

// NewUsageStore creates a new PostgreSQL usage store.
func NewUsageStore(db *sql.DB, clk ports.Clock, ids ports.IDGenerator) *UsageStore {
	return &UsageStore{db: db, clock: clk, ids: ids}
}

// GetOrCreate returns the record for the period, creating a zeroed one if none exists.
// The no-op update makes RETURNING yield the existing row on conflict.
func (s *UsageStore) GetOrCreate(ctx context.Context, userID string, start, end time.Time) (usage.Record, error) {
	now := s.clock.Now().UnixNano()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_records (`+usageColumns+`)
		VALUES ($1, $2, $3, $4, 0, 0, 0, $5, $5)
		ON CONFLICT (user_id, period_start, period_end) DO UPDATE SET
			user_id = EXCLUDED.user_id
		RETURNING `+usageColumns,
		s.ids.New(), userID, start.UnixNano(), end.UnixNano(), now)
	return scanUsage(row)
}

// Increment atomically adds amount to field and returns the new record.
func (s *UsageStore) Increment(ctx context.Context, userID string, start, end time.Time, field usage.Field, amount int64) (usage.Record, error) {
	if err := usage.CheckAmount(amount); err != nil {
		return usage.Record{}, err
	}
	col := field.Column()
	if col == "" {
		return usage.Record{}, fmt.Errorf("%w: %q", usage.ErrUnknownField, string(field))
	}

	seed, _ := usage.Add(usage.Record{}, field, amount, time.Time{})
	now := s.clock.Now().UnixNano()

	// A conflicting row that fails the guard is left untouched and
	// RETURNING yields nothing.
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_records (`+usageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (user_id, period_start, period_end) DO UPDATE SET
			`+col+` = usage_records.`+col+` + EXCLUDED.`+col+`,
			last_updated_at = EXCLUDED.last_updated_at
		WHERE usage_records.`+col+` <= $9
		RETURNING `+usageColumns,
		s.ids.New(), userID, start.UnixNano(), end.UnixNano(),
		seed.APICalls, seed.ItemsCreated, seed.StorageMB, now,
		usage.MaxBefore(amount))
	r, err := scanUsage(row)
	if errors.Is(err, ports.ErrNotFound) || isOutOfRange(err) {
		return usage.Record{}, fmt.Errorf("%w: %s + %d", usage.ErrOverflow, field, amount)
	}
	return r, err
}

// FindCovering returns the user's record whose period contains at.
func (s *UsageStore) FindCovering(ctx context.Context, userID string, at time.Time) (usage.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+usageColumns+` FROM usage_records
		WHERE user_id = $1 AND period_start <= $2 AND period_end > $2
		ORDER BY period_end DESC
		LIMIT 1
	`, userID, at.UnixNano())
	return scanUsage(row)
}

// ListByUser returns a user's records, newest period first.
func (s *UsageStore) ListByUser(ctx context.Context, userID string) ([]usage.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+usageColumns+` FROM usage_records
		WHERE user_id = $1
		ORDER BY period_end DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		r, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanUsage(row scanner) (usage.Record, error) {
	var r usage.Record
	var start, end, created, updated int64

	err := row.Scan(&r.ID, &r.UserID, &start, &end,
		&r.APICalls, &r.ItemsCreated, &r.StorageMB, &created, &updated)
	if err != nil {
		return usage.Record{}, notFound(err)
	}
	r.PeriodStart = time.Unix(0, start).UTC()
	r.PeriodEnd = time.Unix(0, end).UTC()
	r.CreatedAt = time.Unix(0, created).UTC()
	r.LastUpdatedAt = time.Unix(0, updated).UTC()
	return r, nil
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
