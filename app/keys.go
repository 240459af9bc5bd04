// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/westsidetechsolutions/meter/domain/billing"
	"github.com/westsidetechsolutions/meter/domain/key"
	"github.com/westsidetechsolutions/meter/ports"
)

// DefaultKeyPrefix is the label prepended to issued keys.
const DefaultKeyPrefix = "wsts_live"

// KeyService issues, resolves and revokes API keys.
type KeyService struct {
	keys        ports.KeyStore
	subscribers *SubscriberService
	random      ports.Random
	hasher      ports.Hasher
	idGen       ports.IDGenerator
	clock       ports.Clock
	prefix      string
	logger      zerolog.Logger
}

// KeyDeps contains dependencies for KeyService.
type KeyDeps struct {
	Keys        ports.KeyStore
	Subscribers *SubscriberService
	Random      ports.Random
	Hasher      ports.Hasher
	IDGen       ports.IDGenerator
	Clock       ports.Clock
}

// KeyConfig contains configuration for KeyService.
type KeyConfig struct {
	Prefix string
	Logger zerolog.Logger
}

// NewKeyService creates a new key service.
func NewKeyService(deps KeyDeps, cfg KeyConfig) *KeyService {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultKeyPrefix
	}
	return &KeyService{
		keys:        deps.Keys,
		subscribers: deps.Subscribers,
		random:      deps.Random,
		hasher:      deps.Hasher,
		idGen:       deps.IDGen,
		clock:       deps.Clock,
		prefix:      cfg.Prefix,
		logger:      cfg.Logger,
	}
}

// IssueRequest describes a key to issue.
type IssueRequest struct {
	UserID string
	Name   string
	Scopes []string
	// Prefix overrides the configured prefix when non-nil. Any value is
	// accepted, including the empty string.
	Prefix *string
}

// IssueResult carries the raw secret, shown once, and the stored record.
type IssueResult struct {
	Raw string
	Key key.Key
}

// Issue generates a new key for a subscriber and stores only its hash.
func (s *KeyService) Issue(ctx context.Context, req IssueRequest) (IssueResult, error) {
	if req.UserID == "" {
		return IssueResult{}, errors.New("user id is required")
	}
	prefix := s.prefix
	if req.Prefix != nil {
		prefix = *req.Prefix
	}

	secret, err := s.random.Bytes(key.SecretBytes)
	if err != nil {
		return IssueResult{}, fmt.Errorf("generate secret: %w", err)
	}
	issued := key.Issue(prefix, secret, s.hasher.Hash)

	k := key.Key{
		ID:        s.idGen.New(),
		UserID:    req.UserID,
		Name:      req.Name,
		Hash:      issued.Hash,
		Scopes:    req.Scopes,
		CreatedAt: s.clock.Now(),
	}
	if err := s.keys.Create(ctx, k); err != nil {
		return IssueResult{}, fmt.Errorf("store key: %w", err)
	}

	s.logger.Info().
		Str("key_id", k.ID).
		Str("user_id", k.UserID).
		Str("key", key.Display(issued.Raw)).
		Msg("api key issued")

	return IssueResult{Raw: issued.Raw, Key: k}, nil
}

// HashOf returns the stored digest for a raw key.
func (s *KeyService) HashOf(raw string) string {
	return s.hasher.Hash(raw)
}

// Principal is an authenticated caller.
type Principal struct {
	Key        key.Key
	Subscriber billing.Subscriber
}

// Resolve authenticates a presented token.
// An empty token is denied as missing; a token with no unrevoked key is
// denied as invalid. Store failures are returned as errors.
func (s *KeyService) Resolve(ctx context.Context, token string) (Principal, *Denial, error) {
	if token == "" {
		return Principal{}, &DenyMissingCredential, nil
	}

	k, err := s.keys.GetActiveByHash(ctx, s.hasher.Hash(token))
	if errors.Is(err, ports.ErrNotFound) {
		return Principal{}, &DenyInvalidCredential, nil
	}
	if err != nil {
		return Principal{}, nil, fmt.Errorf("lookup key: %w", err)
	}

	// A revoked key never authenticates, whatever the store returned.
	if v := key.Validate(k); !v.Valid {
		return Principal{}, &DenyInvalidCredential, nil
	}

	sub, err := s.subscribers.Get(ctx, k.UserID)
	if err != nil {
		return Principal{}, nil, err
	}

	if err := s.keys.UpdateLastUsed(ctx, k.ID, s.clock.Now()); err != nil {
		s.logger.Warn().Err(err).Str("key_id", k.ID).Msg("failed to update key last used")
	}

	return Principal{Key: k, Subscriber: sub}, nil, nil
}

// Revoke permanently revokes a key. Revoking twice keeps the first time.
func (s *KeyService) Revoke(ctx context.Context, id string) error {
	if err := s.keys.Revoke(ctx, id, s.clock.Now()); err != nil {
		return fmt.Errorf("revoke key %s: %w", id, err)
	}
	s.logger.Info().Str("key_id", id).Msg("api key revoked")
	return nil
}

// List returns a subscriber's keys.
func (s *KeyService) List(ctx context.Context, userID string) ([]key.Key, error) {
	return s.keys.ListByUser(ctx, userID)
}
