package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/ports"
)

// SubscriberStore implements ports.SubscriberStore using PostgreSQL.
type SubscriberStore struct {
	db *sql.DB
}

// NewSubscriberStore creates a new PostgreSQL subscriber store.
func NewSubscriberStore(db *sql.DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

// Get retrieves a subscriber by ID.
func (s *SubscriberStore) Get(ctx context.Context, id string) (billing.Subscriber, error) {
	var sub billing.Subscriber
	err := s.db.QueryRowContext(ctx, `
		SELECT id, plan_id, current_period_end, updated_at
		FROM subscribers WHERE id = $1
	`, id).Scan(&sub.ID, &sub.PlanID, &sub.CurrentPeriodEnd, &sub.UpdatedAt)
	if err != nil {
		return billing.Subscriber{}, notFound(err)
	}
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return sub, nil
}

// Upsert creates or replaces a subscriber.
func (s *SubscriberStore) Upsert(ctx context.Context, sub billing.Subscriber) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, plan_id, current_period_end, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = EXCLUDED.updated_at
	`, sub.ID, sub.PlanID, sub.CurrentPeriodEnd, sub.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ ports.SubscriberStore = (*SubscriberStore)(nil)
