package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/westsidetechsolutions/meter/domain/key"
	"github.com/westsidetechsolutions/meter/ports"
)

const keyColumns = `id, user_id, hash, name, scopes, revoked_at, created_at, last_used`

// KeyStore implements ports.KeyStore using PostgreSQL.
type KeyStore struct {
	db *sql.DB
}

// NewKeyStore creates a new PostgreSQL key store.
func NewKeyStore(db *sql.DB) *KeyStore {
	return &KeyStore{db: db}
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (`+keyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, k.ID, k.UserID, k.Hash, k.Name, pq.Array(scopes), k.RevokedAt, k.CreatedAt, k.LastUsed)
	if isUniqueViolation(err) {
		return ports.ErrConflict
	}
	return err
}

// Get retrieves a key by ID.
func (s *KeyStore) Get(ctx context.Context, id string) (key.Key, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, id)
	return scanKey(row)
}

// GetActiveByHash retrieves the unrevoked key with the given hash.
func (s *KeyStore) GetActiveByHash(ctx context.Context, hash string) (key.Key, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys WHERE hash = $1 AND revoked_at IS NULL
	`, hash)
	return scanKey(row)
}

// Revoke marks a key as revoked. An existing revocation time is kept.
func (s *KeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	return s.touch(ctx, `UPDATE api_keys SET revoked_at = COALESCE(revoked_at, $1) WHERE id = $2`, at, id)
}

// UpdateLastUsed updates the last used timestamp.
func (s *KeyStore) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	return s.touch(ctx, `UPDATE api_keys SET last_used = $1 WHERE id = $2`, at, id)
}

func (s *KeyStore) touch(ctx context.Context, query string, at time.Time, id string) error {
	result, err := s.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// ListByUser returns all keys for a user, oldest first.
func (s *KeyStore) ListByUser(ctx context.Context, userID string) ([]key.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []key.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (key.Key, error) {
	var k key.Key
	var revokedAt, lastUsed sql.NullTime

	err := row.Scan(&k.ID, &k.UserID, &k.Hash, &k.Name, pq.Array(&k.Scopes),
		&revokedAt, &k.CreatedAt, &lastUsed)
	if err != nil {
		return key.Key{}, notFound(err)
	}
	k.CreatedAt = k.CreatedAt.UTC()
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		k.RevokedAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time.UTC()
		k.LastUsed = &t
	}
	return k, nil
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
