package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/westsidetechsolutions/meter/domain/key"
	"github.com/westsidetechsolutions/meter/ports"
)

const keyColumns = `id, user_id, hash, name, scopes, revoked_at, created_at, last_used`

// KeyStore implements ports.KeyStore using SQLite.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a new SQLite key store.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	scopes, err := json.Marshal(k.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.UserID, k.Hash, k.Name, string(scopes),
		nullTime(k.RevokedAt), k.CreatedAt.UTC(), nullTime(k.LastUsed))
	if isConstraint(err) {
		return ports.ErrConflict
	}
	return err
}

// Get retrieves a key by ID.
func (s *KeyStore) Get(ctx context.Context, id string) (key.Key, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys WHERE id = ?
	`, id)
	return scanKey(row)
}

// GetActiveByHash retrieves the unrevoked key with the given hash.
func (s *KeyStore) GetActiveByHash(ctx context.Context, hash string) (key.Key, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys WHERE hash = ? AND revoked_at IS NULL
	`, hash)
	return scanKey(row)
}

// Revoke marks a key as revoked. An existing revocation time is kept.
func (s *KeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?
	`, at.UTC(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns all keys for a user, oldest first.
func (s *KeyStore) ListByUser(ctx context.Context, userID string) ([]key.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyColumns+` FROM api_keys
		WHERE user_id = ?
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

// UpdateLastUsed updates the last used timestamp.
func (s *KeyStore) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used = ? WHERE id = ?
	`, at.UTC(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (key.Key, error) {
	var k key.Key
	var scopes string
	var revokedAt, lastUsed sql.NullTime

	err := row.Scan(
		&k.ID, &k.UserID, &k.Hash, &k.Name, &scopes,
		&revokedAt, &k.CreatedAt, &lastUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return key.Key{}, ErrNotFound
	}
	if err != nil {
		return key.Key{}, err
	}

	if scopes != "" && scopes != "null" {
		if err := json.Unmarshal([]byte(scopes), &k.Scopes); err != nil {
			return key.Key{}, err
		}
	}
	k.CreatedAt = k.CreatedAt.UTC()
	k.RevokedAt = timePtr(revokedAt)
	k.LastUsed = timePtr(lastUsed)
	return k, nil
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
