package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Page size for SCAN when enumerating keys by pattern
const redisScanCount = 200

// RedisStore implements Client on a shared Redis instance. This is the
// production backend; all nodes behind the same Redis see the same keys.
type RedisStore struct {
	rdb    *redis.Client
	closed atomic.Bool
}

var _ Client = (*RedisStore)(nil)

// NewRedis connects using a redis:// URL. The connection is verified lazily;
// a down Redis yields per-operation errors, not a constructor failure.
func NewRedis(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Redis client configured")

	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	value, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}

	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if len(keys) == 0 {
		return 0, nil
	}

	return s.rdb.Del(ctx, keys...).Result()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	// A non-positive ttl clears the expiry instead of deleting the key
	if ttl <= 0 {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
		if err := s.rdb.Persist(ctx, key).Err(); err != nil {
			return false, err
		}
		return true, nil
	}

	return s.rdb.Expire(ctx, key, ttl).Result()
}

func (s *RedisStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if len(keys) == 0 {
		return nil, nil
	}

	raw, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	values := make([][]byte, len(keys))
	for i, v := range raw {
		if str, ok := v.(string); ok {
			values[i] = []byte(str)
		}
	}
	return values, nil
}

func (s *RedisStore) MSet(ctx context.Context, pairs map[string][]byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(pairs) == 0 {
		return nil
	}

	if ttl <= 0 {
		flat := make(map[string]interface{}, len(pairs))
		for key, value := range pairs {
			flat[key] = value
		}
		return s.rdb.MSet(ctx, flat).Err()
	}

	// MSET has no TTL form, so per-key SETs ride one pipeline
	pipe := s.rdb.Pipeline()
	for key, value := range pairs {
		pipe.Set(ctx, key, value, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var matched []string
	iter := s.rdb.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		matched = append(matched, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return matched, nil
}

func (s *RedisStore) FlushDB(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	return s.rdb.FlushDB(ctx).Err()
}

func (s *RedisStore) DBSize(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	return s.rdb.DBSize(ctx).Result()
}

func (s *RedisStore) MemoryUsage(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	info, err := s.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return 0, err
	}
	return parseUsedMemory(info), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.rdb.Close()
}

// parseUsedMemory extracts used_memory from an INFO memory response,
// 0 when the field is missing
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if rest, ok := strings.CutPrefix(line, "used_memory:"); ok {
			bytes, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err != nil {
				return 0
			}
			return bytes
		}
	}
	return 0
}
