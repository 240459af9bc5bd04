package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/westsidetechsolutions/meter/adapters/memory"
	"github.com/westsidetechsolutions/meter/domain/key"
	"github.com/westsidetechsolutions/meter/ports"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func TestKeyStore_CreateAndGet(t *testing.T) {
	store := memory.NewKeyStore()
	ctx := context.Background()

	k := key.Key{
		ID:        "key-001",
		UserID:    "user-001",
		Name:      "Test Key",
		Hash:      "hash-001",
		Scopes:    []string{"read"},
		CreatedAt: baseTime,
	}
	if err := store.Create(ctx, k); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "key-001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Test Key" || got.UserID != "user-001" {
		t.Errorf("Get = %+v", got)
	}

	byHash, err := store.GetActiveByHash(ctx, "hash-001")
	if err != nil {
		t.Fatalf("GetActiveByHash failed: %v", err)
	}
	if byHash.ID != "key-001" {
		t.Errorf("ID = %s, want key-001", byHash.ID)
	}
}

func TestKeyStore_Create_Conflict(t *testing.T) {
	store := memory.NewKeyStore()
	ctx := context.Background()

	store.Create(ctx, key.Key{ID: "k1", Hash: "h1"})

	if err := store.Create(ctx, key.Key{ID: "k1", Hash: "h2"}); !errors.Is(err, ports.ErrConflict) {
		t.Errorf("duplicate ID error = %v, want ErrConflict", err)
	}
	if err := store.Create(ctx, key.Key{ID: "k2", Hash: "h1"}); !errors.Is(err, ports.ErrConflict) {
		t.Errorf("duplicate hash error = %v, want ErrConflict", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestKeyStore_NotFound(t *testing.T) {
	store := memory.NewKeyStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetActiveByHash(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetActiveByHash error = %v, want ErrNotFound", err)
	}
	if err := store.Revoke(ctx, "missing", baseTime); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Revoke error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateLastUsed(ctx, "missing", baseTime); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("UpdateLastUsed error = %v, want ErrNotFound", err)
	}
}

func TestKeyStore_Revoke(t *testing.T) {
	store := memory.NewKeyStore()
	ctx := context.Background()
	store.Create(ctx, key.Key{ID: "k1", UserID: "u1", Hash: "h1"})

	first := baseTime
	if err := store.Revoke(ctx, "k1", first); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := store.Revoke(ctx, "k1", first.Add(time.Hour)); err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}

	got, _ := store.Get(ctx, "k1")
	if got.RevokedAt == nil || !got.RevokedAt.Equal(first) {
		t.Errorf("RevokedAt = %v, want %v", got.RevokedAt, first)
	}
	if _, err := store.GetActiveByHash(ctx, "h1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("revoked key still active: err = %v", err)
	}
}

func TestKeyStore_ListByUser(t *testing.T) {
	store := memory.NewKeyStore()
	ctx := context.Background()

	store.Create(ctx, key.Key{ID: "k2", UserID: "u1", Hash: "h2", CreatedAt: baseTime.Add(time.Hour)})
	store.Create(ctx, key.Key{ID: "k1", UserID: "u1", Hash: "h1", CreatedAt: baseTime})
	store.Create(ctx, key.Key{ID: "k3", UserID: "u2", Hash: "h3", CreatedAt: baseTime})

	keys, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("len = %d, want 2", len(keys))
	}
	if keys[0].ID != "k1" || keys[1].ID != "k2" {
		t.Errorf("order = %s,%s, want k1,k2", keys[0].ID, keys[1].ID)
	}
}

func TestKeyStore_UpdateLastUsed(t *testing.T) {
	store := memory.NewKeyStore()
	ctx := context.Background()
	store.Create(ctx, key.Key{ID: "k1", Hash: "h1"})

	if err := store.UpdateLastUsed(ctx, "k1", baseTime); err != nil {
		t.Fatalf("UpdateLastUsed failed: %v", err)
	}
	got, _ := store.Get(ctx, "k1")
	if got.LastUsed == nil || !got.LastUsed.Equal(baseTime) {
		t.Errorf("LastUsed = %v, want %v", got.LastUsed, baseTime)
	}
}

func TestKeyStore_ScopesCopied(t *testing.T) {
	store := memory.NewKeyStore()
	ctx := context.Background()

	scopes := []string{"read"}
	store.Create(ctx, key.Key{ID: "k1", Hash: "h1", Scopes: scopes})
	scopes[0] = "admin"

	got, _ := store.Get(ctx, "k1")
	if got.Scopes[0] != "read" {
		t.Errorf("Scopes[0] = %s, want read", got.Scopes[0])
	}
}
