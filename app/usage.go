package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/domain/usage"
	"github.com/westsidetechsolutions/meter/ports"
)

// UsageService resolves metering windows and maintains usage counters.
type UsageService struct {
	store       ports.UsageStore
	subscribers *SubscriberService
	clock       ports.Clock
	logger      zerolog.Logger
}

// UsageDeps contains dependencies for UsageService.
type UsageDeps struct {
	Store       ports.UsageStore
	Subscribers *SubscriberService
	Clock       ports.Clock
}

// NewUsageService creates a new usage service.
func NewUsageService(deps UsageDeps, logger zerolog.Logger) *UsageService {
	return &UsageService{
		store:       deps.Store,
		subscribers: deps.Subscribers,
		clock:       deps.Clock,
		logger:      logger,
	}
}

// Window returns the subscriber's current metering window.
//
// When the period end is unusable the fallback window would move with
// every call, so an existing record covering now is reused instead; a new
// fallback window is only opened when none exists.
func (s *UsageService) Window(ctx context.Context, sub billing.Subscriber) (billing.Window, error) {
	now := s.clock.Now()
	w := billing.WindowFor(sub, now)
	if !w.Fallback {
		return w, nil
	}

	r, err := s.store.FindCovering(ctx, sub.ID, now)
	if errors.Is(err, ports.ErrNotFound) {
		s.logger.Debug().Str("user_id", sub.ID).Str("period_end", sub.CurrentPeriodEnd).
			Time("window_end", w.End).Msg("opening fallback window")
		return w, nil
	}
	if err != nil {
		return billing.Window{}, fmt.Errorf("find covering usage: %w", err)
	}
	return billing.Window{Start: r.PeriodStart, End: r.PeriodEnd, Fallback: true}, nil
}

// GetOrCreate returns the usage record for a period, creating it at zero.
func (s *UsageService) GetOrCreate(ctx context.Context, userID string, start, end time.Time) (usage.Record, error) {
	r, err := s.store.GetOrCreate(ctx, userID, start, end)
	if err != nil {
		return usage.Record{}, fmt.Errorf("get or create usage: %w", err)
	}
	return r, nil
}

// Current returns the subscriber's record for the current window.
func (s *UsageService) Current(ctx context.Context, sub billing.Subscriber) (usage.Record, billing.Window, error) {
	w, err := s.Window(ctx, sub)
	if err != nil {
		return usage.Record{}, billing.Window{}, err
	}
	r, err := s.GetOrCreate(ctx, sub.ID, w.Start, w.End)
	if err != nil {
		return usage.Record{}, billing.Window{}, err
	}
	return r, w, nil
}

// Increment adds amount to a subscriber's counter in the current window
// and returns the post-increment record.
func (s *UsageService) Increment(ctx context.Context, userID string, field usage.Field, amount int64) (usage.Record, error) {
	if err := validate(field, amount); err != nil {
		return usage.Record{}, err
	}
	sub, err := s.subscribers.Get(ctx, userID)
	if err != nil {
		return usage.Record{}, err
	}
	w, err := s.Window(ctx, sub)
	if err != nil {
		return usage.Record{}, err
	}
	return s.IncrementIn(ctx, userID, w, field, amount)
}

// IncrementIn adds amount to a counter in a given window.
func (s *UsageService) IncrementIn(ctx context.Context, userID string, w billing.Window, field usage.Field, amount int64) (usage.Record, error) {
	if err := validate(field, amount); err != nil {
		return usage.Record{}, err
	}
	r, err := s.store.Increment(ctx, userID, w.Start, w.End, field, amount)
	if err != nil {
		return usage.Record{}, fmt.Errorf("increment usage: %w", err)
	}
	return r, nil
}

// History returns a subscriber's usage records, newest first.
func (s *UsageService) History(ctx context.Context, userID string) ([]usage.Record, error) {
	return s.store.ListByUser(ctx, userID)
}

func validate(field usage.Field, amount int64) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", usage.ErrUnknownField, string(field))
	}
	return usage.CheckAmount(amount)
}
