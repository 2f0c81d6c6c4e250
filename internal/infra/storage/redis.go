package storage

import (
	"context"
	"errors"
	"fmt"

	"virtual_market/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Compile-time check to ensure RedisStore implements HashStore
var _ domain.HashStore = (*RedisStore)(nil)

// decrIfEnough checks and decrements in one server-side step.
var decrIfEnough = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if cur == nil then
  return redis.error_reply('value is not an integer')
end
local amount = tonumber(ARGV[2])
if cur < amount then
  return {0, cur}
end
return {1, redis.call('HINCRBY', KEYS[1], ARGV[1], -amount)}
`)

// compareAndSwap writes the field only if it still holds the value that was read.
// ARGV: field, expected, expectedExists, next, remove
var compareAndSwap = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
local exists = '0'
if cur then exists = '1' else cur = '' end
if exists ~= ARGV[3] or cur ~= ARGV[2] then
  return 0
end
if ARGV[5] == '1' then
  redis.call('HDEL', KEYS[1], ARGV[1])
else
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[4])
end
return 1
`)

// RedisStore maps each table onto one Redis hash.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over an existing client. prefix namespaces the hash keys.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(table string) string {
	return r.prefix + table
}

// Ping verifies connectivity
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return domain.NewStoreError("ping", err)
	}
	return nil
}

func (r *RedisStore) HGet(ctx context.Context, table, field string) (string, bool, error) {
	val, err := r.client.HGet(ctx, r.key(table), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.NewStoreError("hget", err)
	}
	return val, true, nil
}

func (r *RedisStore) HGetAll(ctx context.Context, table string) (map[string]string, error) {
	vals, err := r.client.HGetAll(ctx, r.key(table)).Result()
	if err != nil {
		return nil, domain.NewStoreError("hgetall", err)
	}
	return vals, nil
}

func (r *RedisStore) HSet(ctx context.Context, table, field, value string) error {
	if err := r.client.HSet(ctx, r.key(table), field, value).Err(); err != nil {
		return domain.NewStoreError("hset", err)
	}
	return nil
}

func (r *RedisStore) HIncrBy(ctx context.Context, table, field string, delta int64) (int64, error) {
	val, err := r.client.HIncrBy(ctx, r.key(table), field, delta).Result()
	if err != nil {
		return 0, domain.NewStoreError("hincrby", err)
	}
	return val, nil
}

func (r *RedisStore) HDecrByIfEnough(ctx context.Context, table, field string, amount int64) (int64, bool, error) {
	res, err := decrIfEnough.Run(ctx, r.client, []string{r.key(table)}, field, amount).Int64Slice()
	if err != nil {
		return 0, false, domain.NewStoreError("hdecrby", err)
	}
	if len(res) != 2 {
		return 0, false, domain.NewCorruptionError("hdecrby", fmt.Errorf("unexpected script reply %v", res))
	}
	return res[1], res[0] == 1, nil
}

func (r *RedisStore) HDel(ctx context.Context, table, field string) error {
	if err := r.client.HDel(ctx, r.key(table), field).Err(); err != nil {
		return domain.NewStoreError("hdel", err)
	}
	return nil
}

func (r *RedisStore) HUpdate(ctx context.Context, table, field string, fn domain.UpdateFunc) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, exists, err := r.HGet(ctx, table, field)
		if err != nil {
			return err
		}

		next, remove, err := fn(current, exists)
		if err != nil {
			return err
		}

		swapped, err := compareAndSwap.Run(ctx, r.client, []string{r.key(table)},
			field, current, boolArg(exists), next, boolArg(remove)).Int()
		if err != nil {
			return domain.NewStoreError("hupdate", err)
		}
		if swapped == 1 {
			return nil
		}
	}
	return domain.NewStoreError("hupdate", domain.ErrConflict)
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
