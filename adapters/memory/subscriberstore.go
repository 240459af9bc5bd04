package memory

import (
	"context"
	"sync"

	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/ports"
)

// SubscriberStore is an in-memory implementation of ports.SubscriberStore.
type SubscriberStore struct {
	mu   sync.RWMutex
	subs map[string]billing.Subscriber
}

// NewSubscriberStore creates a new in-memory subscriber store.
func NewSubscriberStore() *SubscriberStore {
	return &SubscriberStore{subs: make(map[string]billing.Subscriber)}
}

// Get retrieves a subscriber by ID.
func (s *SubscriberStore) Get(ctx context.Context, id string) (billing.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return billing.Subscriber{}, ports.ErrNotFound
	}
	return sub, nil
}

// Upsert creates or replaces a subscriber.
func (s *SubscriberStore) Upsert(ctx context.Context, sub billing.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
	return nil
}

// Ensure interface compliance.
var _ ports.SubscriberStore = (*SubscriberStore)(nil)
