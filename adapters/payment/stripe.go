// Package payment syncs subscriber billing state from the payment provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/subscription"
	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/ports"
)

// ErrNoUserID is returned when a subscription carries no user_id metadata.
var ErrNoUserID = errors.New("subscription has no user_id metadata")

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey string
}

// getFunc fetches a subscription by ID.
type getFunc func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)

// StripeSyncer copies Stripe subscription state into a SubscriberStore.
type StripeSyncer struct {
	subs  ports.SubscriberStore
	clock ports.Clock
	get   getFunc
}

// NewStripeSyncer creates a syncer using the Stripe API.
func NewStripeSyncer(config StripeConfig, subs ports.SubscriberStore, clk ports.Clock) *StripeSyncer {
	stripe.Key = config.SecretKey
	return &StripeSyncer{subs: subs, clock: clk, get: subscription.Get}
}

// Sync fetches a subscription and upserts the subscriber it belongs to.
func (s *StripeSyncer) Sync(ctx context.Context, subscriptionID string) (billing.Subscriber, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.get(subscriptionID, params)
	if err != nil {
		return billing.Subscriber{}, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}

	subscriber, err := SubscriberFromSubscription(sub, s.clock.Now())
	if err != nil {
		return billing.Subscriber{}, err
	}
	if err := s.subs.Upsert(ctx, subscriber); err != nil {
		return billing.Subscriber{}, fmt.Errorf("upsert subscriber: %w", err)
	}
	return subscriber, nil
}

// SubscriberFromSubscription maps a Stripe subscription to a Subscriber.
// The plan is the first item's price ID; ended subscriptions map to an empty
// plan so the free tier applies. A zero period end maps to empty.
// This is a PURE function.
func SubscriberFromSubscription(s *stripe.Subscription, now time.Time) (billing.Subscriber, error) {
	if s == nil {
		return billing.Subscriber{}, errors.New("nil subscription")
	}
	userID := s.Metadata["user_id"]
	if userID == "" {
		return billing.Subscriber{}, fmt.Errorf("%w: %s", ErrNoUserID, s.ID)
	}

	sub := billing.Subscriber{ID: userID, UpdatedAt: now}
	if active(s.Status) && s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		sub.PlanID = s.Items.Data[0].Price.ID
	}
	if s.CurrentPeriodEnd > 0 {
		sub.CurrentPeriodEnd = billing.FormatPeriodEnd(time.Unix(s.CurrentPeriodEnd, 0))
	}
	return sub, nil
}

func active(status stripe.SubscriptionStatus) bool {
	switch status {
	case stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncompleteExpired:
		return false
	default:
		return true
	}
}
