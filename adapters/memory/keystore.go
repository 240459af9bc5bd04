// Package memory provides in-memory store implementations.
// They back the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/westsidetechsolutions/meter/domain/key"
	"github.com/westsidetechsolutions/meter/ports"
)

// KeyStore is an in-memory implementation of ports.KeyStore.
type KeyStore struct {
	mu     sync.RWMutex
	keys   map[string]key.Key // by ID
	byHash map[string]string  // hash -> ID
}

// NewKeyStore creates a new in-memory key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		keys:   make(map[string]key.Key),
		byHash: make(map[string]string),
	}
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[k.ID]; ok {
		return ports.ErrConflict
	}
	if _, ok := s.byHash[k.Hash]; ok {
		return ports.ErrConflict
	}
	s.keys[k.ID] = cloneKey(k)
	s.byHash[k.Hash] = k.ID
	return nil
}

// Get retrieves a key by ID.
func (s *KeyStore) Get(ctx context.Context, id string) (key.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[id]
	if !ok {
		return key.Key{}, ports.ErrNotFound
	}
	return cloneKey(k), nil
}

// GetActiveByHash retrieves the unrevoked key with the given hash.
func (s *KeyStore) GetActiveByHash(ctx context.Context, hash string) (key.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return key.Key{}, ports.ErrNotFound
	}
	k := s.keys[id]
	if k.RevokedAt != nil {
		return key.Key{}, ports.ErrNotFound
	}
	return cloneKey(k), nil
}

// Revoke marks a key as revoked.
func (s *KeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return ports.ErrNotFound
	}
	if k.RevokedAt == nil {
		k.RevokedAt = &at
		s.keys[id] = k
	}
	return nil
}

// ListByUser returns all keys for a user, oldest first.
func (s *KeyStore) ListByUser(ctx context.Context, userID string) ([]key.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []key.Key
	for _, k := range s.keys {
		if k.UserID == userID {
			result = append(result, cloneKey(k))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateLastUsed updates the last used timestamp.
func (s *KeyStore) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return ports.ErrNotFound
	}
	k.LastUsed = &at
	s.keys[id] = k
	return nil
}

// Len returns the number of stored keys (for testing).
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func cloneKey(k key.Key) key.Key {
	if k.Scopes != nil {
		k.Scopes = append([]string(nil), k.Scopes...)
	}
	return k
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
