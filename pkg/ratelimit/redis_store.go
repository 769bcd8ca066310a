package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store with a Redis sorted set per key: member score
// is the request timestamp in nanoseconds. The check-and-record runs as a Lua
// script so two instances cannot both admit the request that crosses the
// limit.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var recordScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local count = redis.call("ZCARD", KEYS[1])
if count >= tonumber(ARGV[2]) then
	return {0, count}
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {1, count + 1}
`)

// NewRedisStore creates a Redis-backed sliding window store.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int64, error) {
	cutoff := now.Add(-window).UnixNano()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	res, err := recordScript.Run(ctx, s.client, []string{s.key(key)},
		cutoff, limit, now.UnixNano(), member, window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}

	return res[0] == 1, res[1], nil
}

func (s *RedisStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	cutoff := strconv.FormatInt(time.Now().Add(-window).UnixNano(), 10)
	return s.client.ZCount(ctx, s.key(key), "("+cutoff, "+inf").Result()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
