package payment

import "github.com/stripe/stripe-go/v76"

// SetGetter replaces the Stripe API call (for testing).
func (s *StripeSyncer) SetGetter(fn func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)) {
	s.get = fn
}
