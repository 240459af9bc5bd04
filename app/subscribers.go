package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/ports"
)

// SubscriberService reads and writes the billing view of users.
type SubscriberService struct {
	store  ports.SubscriberStore
	clock  ports.Clock
	logger zerolog.Logger
}

// NewSubscriberService creates a new subscriber service.
func NewSubscriberService(store ports.SubscriberStore, clock ports.Clock, logger zerolog.Logger) *SubscriberService {
	return &SubscriberService{store: store, clock: clock, logger: logger}
}

// Get returns the subscriber. A user with no billing record yet is a
// subscriber with no plan and no period end.
func (s *SubscriberService) Get(ctx context.Context, id string) (billing.Subscriber, error) {
	sub, err := s.store.Get(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return billing.Subscriber{ID: id}, nil
	}
	if err != nil {
		return billing.Subscriber{}, fmt.Errorf("get subscriber %s: %w", id, err)
	}
	return sub, nil
}

// Set stores a subscriber's plan and period end as given.
// Period ends are kept verbatim; unusable values fall back at window time.
func (s *SubscriberService) Set(ctx context.Context, id, planID, periodEnd string) (billing.Subscriber, error) {
	if id == "" {
		return billing.Subscriber{}, errors.New("subscriber id is required")
	}
	sub := billing.Subscriber{
		ID:               id,
		PlanID:           planID,
		CurrentPeriodEnd: periodEnd,
		UpdatedAt:        s.clock.Now(),
	}
	if err := s.store.Upsert(ctx, sub); err != nil {
		return billing.Subscriber{}, fmt.Errorf("upsert subscriber %s: %w", id, err)
	}

	if _, ok := billing.ParsePeriodEnd(periodEnd); !ok && periodEnd != "" {
		s.logger.Warn().Str("user_id", id).Str("period_end", periodEnd).
			Msg("unparseable period end stored; fallback window will apply")
	}
	return sub, nil
}
