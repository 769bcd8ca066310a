package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of a Redis client. Compare-and-swap is
// implemented as a Lua script so the check and the write happen atomically
// server-side; GetDel maps to the native GETDEL command.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// casScript swaps the value only when the current value matches ARGV[1].
// ARGV[3] is the TTL in milliseconds; 0 preserves the key without expiry.
var casScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces all keys with the given prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrKeyRequired
	}

	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}

	res, err := casScript.Run(ctx, s.client, []string{s.key(key)}, old, next, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisStore) GetDel(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	value, err := s.client.GetDel(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}

	return s.client.Del(ctx, s.key(key)).Err()
}
