package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/westsidetechsolutions/meter/domain/usage"
	"github.com/westsidetechsolutions/meter/ports"
)

const (
	recordKeyPrefix = "usage:rec:"
	indexKeyPrefix  = "usage:idx:"
)

// Hash field names.
const (
	hID          = "id"
	hUserID      = "user_id"
	hStart       = "period_start"
	hEnd         = "period_end"
	hCreatedAt   = "created_at"
	hLastUpdated = "last_updated_at"
)

// overflowReply is the script error for an increment past the int64 range.
const overflowReply = "usage counter overflow"

// upsertScript creates the window hash if missing, applies the increment and
// returns the whole hash, all in one atomic step.
//
// KEYS[1] record hash, KEYS[2] per-user index
// ARGV: id, user, start, end, now, column ("" for none), amount, index score,
// largest current value the amount can be added to
//
// Lua numbers are doubles, so the overflow bound is compared as a decimal
// string: shorter is smaller, equal lengths compare lexically.
var upsertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	redis.call('HSET', KEYS[1],
		'id', ARGV[1], 'user_id', ARGV[2],
		'period_start', ARGV[3], 'period_end', ARGV[4],
		'api_calls', 0, 'items_created', 0, 'storage_mb', 0,
		'created_at', ARGV[5], 'last_updated_at', ARGV[5])
	redis.call('ZADD', KEYS[2], ARGV[8], KEYS[1])
end
if ARGV[6] ~= '' then
	local cur = redis.call('HGET', KEYS[1], ARGV[6]) or '0'
	local limit = ARGV[9]
	if #cur > #limit or (#cur == #limit and cur > limit) then
		return redis.error_reply('` + overflowReply + `')
	end
	redis.call('HINCRBY', KEYS[1], ARGV[6], ARGV[7])
	redis.call('HSET', KEYS[1], 'last_updated_at', ARGV[5])
end
return redis.call('HGETALL', KEYS[1])
`)

// UsageStore implements ports.UsageStore on Redis.
// Each window is a hash; a sorted set per user indexes windows by end time.
type UsageStore struct {
	client redis.UniversalClient
	clock  ports.Clock
	ids    ports.IDGenerator
}

// NewUsageStore creates a Redis usage store.
func NewUsageStore(client redis.UniversalClient, clk ports.Clock, ids ports.IDGenerator) *UsageStore {
	return &UsageStore{client: client, clock: clk, ids: ids}
}

func recordKey(userID string, start, end time.Time) string {
	return recordKeyPrefix + usage.Key{UserID: userID, PeriodStart: start, PeriodEnd: end}.String()
}

func indexKey(userID string) string {
	return indexKeyPrefix + userID
}

// GetOrCreate returns the record for the period, creating a zeroed one if none exists.
func (s *UsageStore) GetOrCreate(ctx context.Context, userID string, start, end time.Time) (usage.Record, error) {
	return s.upsert(ctx, userID, start, end, "", 0)
}

// Increment atomically adds amount to field and returns the new record.
func (s *UsageStore) Increment(ctx context.Context, userID string, start, end time.Time, field usage.Field, amount int64) (usage.Record, error) {
	if err := usage.CheckAmount(amount); err != nil {
		return usage.Record{}, err
	}
	col := field.Column()
	if col == "" {
		return usage.Record{}, fmt.Errorf("%w: %q", usage.ErrUnknownField, string(field))
	}
	return s.upsert(ctx, userID, start, end, col, amount)
}

func (s *UsageStore) upsert(ctx context.Context, userID string, start, end time.Time, col string, amount int64) (usage.Record, error) {
	keys := []string{recordKey(userID, start, end), indexKey(userID)}
	args := []any{
		s.ids.New(), userID,
		start.UnixNano(), end.UnixNano(),
		s.clock.Now().UnixNano(),
		col, amount,
		end.UnixMilli(),
		strconv.FormatInt(usage.MaxBefore(amount), 10),
	}

	res, err := upsertScript.Run(ctx, s.client, keys, args...).StringSlice()
	if err != nil {
		if isOverflow(err) {
			return usage.Record{}, fmt.Errorf("%w: %s + %d", usage.ErrOverflow, col, amount)
		}
		return usage.Record{}, fmt.Errorf("upsert usage record: %w", err)
	}
	if len(res)%2 != 0 {
		return usage.Record{}, fmt.Errorf("upsert usage record: odd reply length %d", len(res))
	}
	fields := make(map[string]string, len(res)/2)
	for i := 0; i < len(res); i += 2 {
		fields[res[i]] = res[i+1]
	}
	return parseRecord(fields)
}

// isOverflow matches the script's guard and the server's own HINCRBY check.
func isOverflow(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, overflowReply) || strings.Contains(msg, "would overflow")
}

// FindCovering returns the user's record whose period contains at.
func (s *UsageStore) FindCovering(ctx context.Context, userID string, at time.Time) (usage.Record, error) {
	// Scores are end times in milliseconds; candidates ending at or after
	// at's millisecond are checked exactly below.
	members, err := s.client.ZRevRangeByScore(ctx, indexKey(userID), &redis.ZRangeBy{
		Min: strconv.FormatInt(at.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return usage.Record{}, fmt.Errorf("query usage index: %w", err)
	}

	records, err := s.load(ctx, members)
	if err != nil {
		return usage.Record{}, err
	}
	for _, r := range records {
		if !at.Before(r.PeriodStart) && at.Before(r.PeriodEnd) {
			return r, nil
		}
	}
	return usage.Record{}, ports.ErrNotFound
}

// ListByUser returns a user's records, newest period first.
func (s *UsageStore) ListByUser(ctx context.Context, userID string) ([]usage.Record, error) {
	members, err := s.client.ZRevRange(ctx, indexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("query usage index: %w", err)
	}
	return s.load(ctx, members)
}

// load fetches record hashes in one pipeline, skipping members whose hash is gone.
func (s *UsageStore) load(ctx context.Context, keys []string) ([]usage.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load usage records: %w", err)
	}

	records := make([]usage.Record, 0, len(keys))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		r, err := parseRecord(fields)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// parseRecord decodes a record hash. Any unparseable counter is an error.
func parseRecord(h map[string]string) (usage.Record, error) {
	r := usage.Record{ID: h[hID], UserID: h[hUserID]}

	ints := []struct {
		name string
		dst  *int64
	}{
		{usage.FieldAPICalls.Column(), &r.APICalls},
		{usage.FieldItemsCreated.Column(), &r.ItemsCreated},
		{usage.FieldStorageMB.Column(), &r.StorageMB},
	}
	for _, f := range ints {
		n, err := strconv.ParseInt(h[f.name], 10, 64)
		if err != nil {
			return usage.Record{}, fmt.Errorf("usage record %s: field %s: %w", r.ID, f.name, err)
		}
		*f.dst = n
	}

	times := []struct {
		name string
		dst  *time.Time
	}{
		{hStart, &r.PeriodStart},
		{hEnd, &r.PeriodEnd},
		{hCreatedAt, &r.CreatedAt},
		{hLastUpdated, &r.LastUpdatedAt},
	}
	for _, f := range times {
		n, err := strconv.ParseInt(h[f.name], 10, 64)
		if err != nil {
			return usage.Record{}, fmt.Errorf("usage record %s: field %s: %w", r.ID, f.name, err)
		}
		*f.dst = time.Unix(0, n).UTC()
	}
	return r, nil
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
