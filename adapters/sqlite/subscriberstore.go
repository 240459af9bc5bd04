package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/ports"
)

// SubscriberStore implements ports.SubscriberStore using SQLite.
type SubscriberStore struct {
	db *DB
}

// NewSubscriberStore creates a new SQLite subscriber store.
func NewSubscriberStore(db *DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

// Get retrieves a subscriber by ID.
func (s *SubscriberStore) Get(ctx context.Context, id string) (billing.Subscriber, error) {
	var sub billing.Subscriber
	err := s.db.QueryRowContext(ctx, `
		SELECT id, plan_id, current_period_end, updated_at
		FROM subscribers WHERE id = ?
	`, id).Scan(&sub.ID, &sub.PlanID, &sub.CurrentPeriodEnd, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Subscriber{}, ErrNotFound
	}
	if err != nil {
		return billing.Subscriber{}, err
	}
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return sub, nil
}

// Upsert creates or replaces a subscriber.
func (s *SubscriberStore) Upsert(ctx context.Context, sub billing.Subscriber) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, plan_id, current_period_end, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plan_id = excluded.plan_id,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at
	`, sub.ID, sub.PlanID, sub.CurrentPeriodEnd, sub.UpdatedAt.UTC())
	return err
}

// Ensure interface compliance.
var _ ports.SubscriberStore = (*SubscriberStore)(nil)
