package sqlite

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

// UsageStore implements ports.UsageStore using SQLite.
// Increments are single upsert statements, so concurrent writers never lose updates.
type UsageStore struct {
	db    *DB
	clock ports.Clock
	ids   ports.IDGenerator
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB, clk ports.Clock, ids ports.IDGenerator) *UsageStore {
	return &UsageStore{db: db, clock: clk, ids: ids}
}

// GetOrCreate returns the record for the period, creating a zeroed one if none exists.
func (s *UsageStore) GetOrCreate(ctx context.Context, userID string, start, end time.Time) (usage.Record, error) {
	now := s.clock.Now().UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (`+usageColumns+`)
		VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?)
		ON CONFLICT(user_id, period_start, period_end) DO NOTHING
	`, s.ids.New(), userID, start.UnixNano(), end.UnixNano(), now, now)
	if err != nil {
		return usage.Record{}, fmt.Errorf("create usage record: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+usageColumns+` FROM usage_records
		WHERE user_id = ? AND period_start = ? AND period_end = ?
	`, userID, start.UnixNano(), end.UnixNano())
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

	// col comes from a closed set of column names, never from input.
	// The WHERE guard skips the update, and so returns no row, when the
	// sum would not fit in a signed 64-bit integer.
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_records (`+usageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, period_start, period_end) DO UPDATE SET
			`+col+` = `+col+` + excluded.`+col+`,
			last_updated_at = excluded.last_updated_at
		WHERE usage_records.`+col+` <= ?
		RETURNING `+usageColumns,
		s.ids.New(), userID, start.UnixNano(), end.UnixNano(),
		seed.APICalls, seed.ItemsCreated, seed.StorageMB, now, now,
		usage.MaxBefore(amount))
	r, err := scanUsage(row)
	if errors.Is(err, ErrNotFound) {
		return usage.Record{}, fmt.Errorf("%w: %s + %d", usage.ErrOverflow, field, amount)
	}
	return r, err
}

// FindCovering returns the user's record whose period contains at.
func (s *UsageStore) FindCovering(ctx context.Context, userID string, at time.Time) (usage.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+usageColumns+` FROM usage_records
		WHERE user_id = ? AND period_start <= ? AND period_end > ?
		ORDER BY period_end DESC
		LIMIT 1
	`, userID, at.UnixNano(), at.UnixNano())
	return scanUsage(row)
}

// ListByUser returns a user's records, newest period first.
func (s *UsageStore) ListByUser(ctx context.Context, userID string) ([]usage.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+usageColumns+` FROM usage_records
		WHERE user_id = ?
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
	if errors.Is(err, sql.ErrNoRows) {
		return usage.Record{}, ErrNotFound
	}
	if err != nil {
		return usage.Record{}, err
	}

	r.PeriodStart = fromNanos(start)
	r.PeriodEnd = fromNanos(end)
	r.CreatedAt = fromNanos(created)
	r.LastUpdatedAt = fromNanos(updated)
	return r, nil
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
