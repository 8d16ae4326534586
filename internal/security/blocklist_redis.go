package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

const defaultBlockListKey = "rsvpguard:blocklist"

// mergeAttempts bounds optimistic retries when another writer touches the
// hash during Merge.
const mergeAttempts = 5

// deleteIfUnchanged removes field only while it still holds the value the
// caller read.
var deleteIfUnchanged = redis.NewScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call('HDEL', KEYS[1], ARGV[1])
end
return 0
`)

// RedisBlockList keeps the block set in one Redis hash so every server
// instance sees the same blocks. Field = identifier, value = JSON entry.
type RedisBlockList struct {
	client *redis.Client
	key    string
}

// NewRedisBlockList returns a block list stored under key. An empty key
// uses the default.
func NewRedisBlockList(client *redis.Client, key string) *RedisBlockList {
	if key == "" {
		key = defaultBlockListKey
	}
	return &RedisBlockList{client: client, key: key}
}

func (b *RedisBlockList) Block(ctx context.Context, entry domain.BlockEntry) error {
	if entry.Identifier == "" {
		return domain.ErrMissingArgument.WithDetails("identifier is required")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("security: encode block entry: %w", err)
	}
	if err := b.client.HSet(ctx, b.key, entry.Identifier, data).Err(); err != nil {
		return fmt.Errorf("security: redis block: %w", err)
	}
	return nil
}

func (b *RedisBlockList) Unblock(ctx context.Context, identifier string) (bool, error) {
	n, err := b.client.HDel(ctx, b.key, identifier).Result()
	if err != nil {
		return false, fmt.Errorf("security: redis unblock: %w", err)
	}
	return n > 0, nil
}

func (b *RedisBlockList) Lookup(ctx context.Context, identifier string, now time.Time) (domain.BlockEntry, bool, error) {
	raw, err := b.client.HGet(ctx, b.key, identifier).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BlockEntry{}, false, nil
	}
	if err != nil {
		return domain.BlockEntry{}, false, fmt.Errorf("security: redis lookup: %w", err)
	}
	var e domain.BlockEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return domain.BlockEntry{}, false, fmt.Errorf("security: decode block entry: %w", err)
	}
	if !e.Active(now) {
		// A re-block since the read changes the value and survives.
		if err := deleteIfUnchanged.Run(ctx, b.client, []string{b.key}, identifier, raw).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return domain.BlockEntry{}, false, fmt.Errorf("security: redis expire block: %w", err)
		}
		return domain.BlockEntry{}, false, nil
	}
	return e, true, nil
}

func (b *RedisBlockList) List(ctx context.Context, now time.Time) ([]domain.BlockEntry, error) {
	all, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("security: redis list: %w", err)
	}
	out := make([]domain.BlockEntry, 0, len(all))
	for _, raw := range all {
		var e domain.BlockEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if e.Active(now) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

// Merge runs in a WATCH transaction on the hash so a block written between
// the read and the write is never lost.
func (b *RedisBlockList) Merge(ctx context.Context, entry domain.BlockEntry, overwrite bool, now time.Time) (bool, error) {
	if entry.Identifier == "" {
		return false, domain.ErrMissingArgument.WithDetails("identifier is required")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("security: encode block entry: %w", err)
	}

	var stored bool
	txf := func(tx *redis.Tx) error {
		stored = false
		var current domain.BlockEntry
		raw, err := tx.HGet(ctx, b.key, entry.Identifier).Bytes()
		exists := err == nil
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if json.Unmarshal(raw, &current) != nil {
				exists = false
			}
		}
		if !mergeEntry(current, exists, entry, overwrite, now) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, b.key, entry.Identifier, data)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}

	for i := 0; i < mergeAttempts; i++ {
		err = b.client.Watch(ctx, txf, b.key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return false, fmt.Errorf("security: redis merge: %w", err)
	}
	return stored, nil
}
