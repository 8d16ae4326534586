package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "rsvpguard:rl:"

// admitScript mirrors admit. Fields: c (count), r (reset ms), b (blocked until ms).
// Returns {allowed, remaining, resetAtMs, reason}.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local burst = tonumber(ARGV[4])
local cooldown = tonumber(ARGV[5])
local ceiling = math.min(limit, burst)

local h = redis.call('HMGET', key, 'c', 'r', 'b')
local count = tonumber(h[1]) or 0
local reset = tonumber(h[2]) or 0
local blocked = tonumber(h[3]) or 0

if blocked > 0 then
  if now < blocked then
    return {0, 0, blocked, 'blocked'}
  end
  blocked = 0
  reset = 0
end

if now >= reset then
  reset = now + window
  redis.call('HSET', key, 'c', 1, 'r', reset, 'b', 0)
  redis.call('PEXPIREAT', key, reset)
  return {1, ceiling - 1, reset, ''}
end

if count + 1 > burst then
  blocked = now + cooldown
  redis.call('HSET', key, 'b', blocked)
  redis.call('PEXPIREAT', key, math.max(blocked, reset))
  return {0, 0, blocked, 'blocked'}
end

if count >= limit then
  return {0, 0, reset, 'rate_limited'}
end

count = redis.call('HINCRBY', key, 'c', 1)
local remaining = ceiling - count
if remaining < 0 then remaining = 0 end
return {1, remaining, reset, ''}
`)

// RedisStore shares windows across server instances through Redis.
// Keys expire on their own, so Cleanup has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisKeyPrefix overrides the key prefix.
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore constructs a Redis-backed window store.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) key(identifier string) string {
	return s.prefix + identifier
}

// Admit runs the admission script for identifier.
func (s *RedisStore) Admit(ctx context.Context, identifier string, now time.Time, cfg Config) (Decision, error) {
	res, err := admitScript.Run(ctx, s.client, []string{s.key(identifier)},
		now.UnixMilli(),
		cfg.Window.Milliseconds(),
		cfg.WindowLimit,
		cfg.BurstLimit,
		cfg.Cooldown.Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis admit: %w", err)
	}
	if len(res) != 4 {
		return Decision{}, fmt.Errorf("ratelimit: redis admit: unexpected reply length %d", len(res))
	}

	allowed, _ := res[0].(int64)
	remaining, _ := res[1].(int64)
	resetMs, _ := res[2].(int64)
	reason, _ := res[3].(string)
	return Decision{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetAt:   time.UnixMilli(resetMs),
		Reason:    Reason(reason),
	}, nil
}

// Peek reads identifier's window without counting.
func (s *RedisStore) Peek(ctx context.Context, identifier string) (Window, bool, error) {
	vals, err := s.client.HMGet(ctx, s.key(identifier), "c", "r", "b").Result()
	if err != nil {
		return Window{}, false, fmt.Errorf("ratelimit: redis peek: %w", err)
	}
	if len(vals) != 3 || vals[1] == nil {
		return Window{}, false, nil
	}
	w := Window{
		Count:   int(parseRedisInt(vals[0])),
		ResetAt: time.UnixMilli(parseRedisInt(vals[1])),
	}
	if b := parseRedisInt(vals[2]); b > 0 {
		w.BlockedUntil = time.UnixMilli(b)
	}
	return w, true, nil
}

// Reset deletes identifier's window.
func (s *RedisStore) Reset(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ratelimit: redis reset: %w", err)
	}
	return nil
}

// Cleanup is a no-op; Redis expires keys itself.
func (s *RedisStore) Cleanup(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Count scans the key prefix.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("ratelimit: redis count: %w", err)
	}
	return n, nil
}

func parseRedisInt(v any) int64 {
	switch t := v.(type) {
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case int64:
		return t
	}
	return 0
}
