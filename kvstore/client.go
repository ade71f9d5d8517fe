package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/palettekb/palette/cfg"
)

// Client is the key-value surface the cache layer runs on. One shared Redis
// instance backs production deployments; the memory and pebble clients serve
// single-node setups and tests. Implementations are safe for concurrent use.
//
// TTL semantics: a ttl <= 0 stores the key without expiry. Expired keys are
// indistinguishable from absent keys on every read path.
type Client interface {
	// Get returns the value stored under key, or ErrNotFound when the key
	// is absent or expired. The returned slice must not be modified.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value and TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes the given keys and reports how many were present.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Exists reports whether key holds a live value.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire resets the TTL of an existing key. Returns false when the key
	// is absent; the key is left untouched in that case.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// MGet returns one slot per requested key, nil for absent keys.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)

	// MSet stores all pairs with a shared TTL. Not atomic across keys on
	// every backend; a failed call may leave a subset written.
	MSet(ctx context.Context, pairs map[string][]byte, ttl time.Duration) error

	// Keys returns all live keys matching a glob pattern (*, ?, [...]).
	Keys(ctx context.Context, pattern string) ([]string, error)

	// FlushDB removes every key.
	FlushDB(ctx context.Context) error

	// DBSize returns the number of live keys.
	DBSize(ctx context.Context) (int64, error)

	// MemoryUsage returns the approximate bytes held by the store,
	// 0 when the backend cannot tell.
	MemoryUsage(ctx context.Context) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the client. Further calls return ErrClosed.
	Close() error
}

var (
	// ErrNotFound is returned by Get when a key is absent or expired.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("kvstore: client closed")
)

// New creates the backend selected by the configuration.
func New(config *cfg.Config) (Client, error) {
	janitorInterval := time.Duration(config.Cache.JanitorIntervalSec) * time.Second

	switch config.Cache.Backend {
	case cfg.BackendMemory:
		return NewMemory(janitorInterval), nil
	case cfg.BackendPebble:
		return NewPebble(config.PebblePath(), DefaultPebbleOptions(janitorInterval))
	default:
		client, err := NewRedis(config.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		if config.Cache.BreakerEnabled {
			return NewBreaker(client), nil
		}
		return client, nil
	}
}
