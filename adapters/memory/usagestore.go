package memory

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/westsidetechsolutions/meter/adapters/clock"
	"github.com/westsidetechsolutions/meter/adapters/idgen"
	"github.com/westsidetechsolutions/meter/domain/usage"
	"github.com/westsidetechsolutions/meter/ports"
)

// usageShard is a single shard of the usage store.
// Records for one user always land in the same shard.
type usageShard struct {
	mu      sync.RWMutex
	records map[string]usage.Record // by usage.Key string
}

// UsageStore is a sharded in-memory implementation of ports.UsageStore.
// Uses sharding to reduce lock contention for high throughput.
type UsageStore struct {
	shards    []*usageShard
	numShards int
	clock     ports.Clock
	ids       ports.IDGenerator
}

// UsageStoreConfig configures the usage store.
type UsageStoreConfig struct {
	NumShards int               // Number of shards (default: 32)
	Clock     ports.Clock       // default: clock.Real
	IDs       ports.IDGenerator // default: idgen.UUID{Prefix: "usage_"}
}

// NewUsageStore creates a new sharded in-memory usage store.
func NewUsageStore(cfg UsageStoreConfig) *UsageStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.IDs == nil {
		cfg.IDs = idgen.UUID{Prefix: "usage_"}
	}

	s := &UsageStore{
		shards:    make([]*usageShard, cfg.NumShards),
		numShards: cfg.NumShards,
		clock:     cfg.Clock,
		ids:       cfg.IDs,
	}
	for i := range s.shards {
		s.shards[i] = &usageShard{records: make(map[string]usage.Record)}
	}
	return s
}

// getShard returns the shard for a user using consistent hashing.
func (s *UsageStore) getShard(userID string) *usageShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// getOrCreateLocked returns the record for the key, creating it if missing.
// Caller must hold shard.mu for writing.
func (s *UsageStore) getOrCreateLocked(shard *usageShard, userID string, start, end time.Time) usage.Record {
	k := usage.Key{UserID: userID, PeriodStart: start, PeriodEnd: end}.String()
	if r, ok := shard.records[k]; ok {
		return r
	}
	r := usage.New(s.ids.New(), userID, start.UTC(), end.UTC(), s.clock.Now())
	shard.records[k] = r
	return r
}

// GetOrCreate returns the record for the period, creating a zeroed one if none exists.
func (s *UsageStore) GetOrCreate(ctx context.Context, userID string, start, end time.Time) (usage.Record, error) {
	shard := s.getShard(userID)

	k := usage.Key{UserID: userID, PeriodStart: start, PeriodEnd: end}.String()
	shard.mu.RLock()
	r, ok := shard.records[k]
	shard.mu.RUnlock()
	if ok {
		return r, nil
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	return s.getOrCreateLocked(shard, userID, start, end), nil
}

// Increment atomically adds amount to field and returns the new record.
func (s *UsageStore) Increment(ctx context.Context, userID string, start, end time.Time, field usage.Field, amount int64) (usage.Record, error) {
	if err := usage.CheckAmount(amount); err != nil {
		return usage.Record{}, err
	}
	if !field.Valid() {
		return usage.Record{}, usage.ErrUnknownField
	}

	shard := s.getShard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	r := s.getOrCreateLocked(shard, userID, start, end)
	r, err := usage.Add(r, field, amount, s.clock.Now())
	if err != nil {
		return usage.Record{}, err
	}
	shard.records[usage.KeyOf(r).String()] = r
	return r, nil
}

// FindCovering returns the user's record whose period contains at.
// When periods overlap the one ending latest wins.
func (s *UsageStore) FindCovering(ctx context.Context, userID string, at time.Time) (usage.Record, error) {
	shard := s.getShard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	var (
		best  usage.Record
		found bool
	)
	for _, r := range shard.records {
		if r.UserID != userID || at.Before(r.PeriodStart) || !at.Before(r.PeriodEnd) {
			continue
		}
		if !found || r.PeriodEnd.After(best.PeriodEnd) {
			best, found = r, true
		}
	}
	if !found {
		return usage.Record{}, ports.ErrNotFound
	}
	return best, nil
}

// ListByUser returns a user's records, newest period first.
func (s *UsageStore) ListByUser(ctx context.Context, userID string) ([]usage.Record, error) {
	shard := s.getShard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	var result []usage.Record
	for _, r := range shard.records {
		if r.UserID == userID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodEnd.After(result[j].PeriodEnd)
	})
	return result, nil
}

// Put stores a record as-is, replacing any record with the same key (for testing).
func (s *UsageStore) Put(r usage.Record) {
	shard := s.getShard(r.UserID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.records[usage.KeyOf(r).String()] = r
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
