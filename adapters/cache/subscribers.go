// Package cache provides read-through caching decorators for stores.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/ports"
	"golang.org/x/sync/singleflight"
)

// Config configures the subscriber cache.
type Config struct {
	Size int           // max entries (default: 10000)
	TTL  time.Duration // entry lifetime (default: 30s)
}

// SubscriberStore caches subscriber lookups in an expiring LRU.
// Concurrent misses for the same subscriber share one backend load.
// Only found subscribers are cached.
type SubscriberStore struct {
	next  ports.SubscriberStore
	cache *lru.LRU[string, billing.Subscriber]
	group singleflight.Group
}

// NewSubscriberStore wraps next with a cache.
func NewSubscriberStore(next ports.SubscriberStore, cfg Config) *SubscriberStore {
	if cfg.Size <= 0 {
		cfg.Size = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &SubscriberStore{
		next:  next,
		cache: lru.NewLRU[string, billing.Subscriber](cfg.Size, nil, cfg.TTL),
	}
}

// Get retrieves a subscriber, loading from the backing store on a miss.
func (s *SubscriberStore) Get(ctx context.Context, id string) (billing.Subscriber, error) {
	if sub, ok := s.cache.Get(id); ok {
		return sub, nil
	}

	// The shared load outlives any one caller; each caller stops waiting
	// when its own context ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id, func() (any, error) {
		sub, err := s.next.Get(loadCtx, id)
		if err != nil {
			return billing.Subscriber{}, err
		}
		s.cache.Add(id, sub)
		return sub, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return billing.Subscriber{}, res.Err
		}
		return res.Val.(billing.Subscriber), nil
	case <-ctx.Done():
		return billing.Subscriber{}, ctx.Err()
	}
}

// Upsert writes through to the backing store and drops the cached entry.
func (s *SubscriberStore) Upsert(ctx context.Context, sub billing.Subscriber) error {
	if err := s.next.Upsert(ctx, sub); err != nil {
		return err
	}
	s.cache.Remove(sub.ID)
	return nil
}

// Len returns the number of cached entries.
func (s *SubscriberStore) Len() int {
	return s.cache.Len()
}

// Ensure interface compliance.
var _ ports.SubscriberStore = (*SubscriberStore)(nil)
