// Package cache is the cache-aside layer over the backing key-value store.
// Every operation is namespaced and non-throwing: when the store is
// unreachable the methods answer with neutral values (nil, false, 0) so
// callers fall through to their source of truth instead of failing.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/cfg"
	"github.com/palettekb/palette/kvstore"
	"github.com/palettekb/palette/telemetry"
)

// Store namespaces and serializes values over a kvstore.Client. Hit and miss
// counters are process-local; key counts and memory usage come from the
// shared store. Safe for concurrent use.
type Store struct {
	client            kvstore.Client
	prefix            string
	defaultTTL        time.Duration
	compressThreshold int

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is the point-in-time view returned by Stats. The counters are
// this process's alone; TotalKeys and MemoryUsage describe the shared store.
type CacheStats struct {
	TotalHits   int64     `json:"totalHits"`
	TotalMisses int64     `json:"totalMisses"`
	HitRate     float64   `json:"hitRate"`
	TotalKeys   int64     `json:"totalKeys"`
	MemoryUsage int64     `json:"memoryUsage"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewStore wraps a client with the configured namespace, default TTL and
// compression threshold. The store takes ownership of the client; Close
// closes it.
func NewStore(client kvstore.Client, config cfg.CacheConfiguration) *Store {
	return &Store{
		client:            client,
		prefix:            config.Prefix,
		defaultTTL:        time.Duration(config.DefaultTTLSeconds) * time.Second,
		compressThreshold: config.CompressThreshold,
	}
}

// observe records one operation in telemetry
func (s *Store) observe(op string, start time.Time, st Status) {
	telemetry.CacheOpsTotal.With(op, st.String()).Inc()
	telemetry.CacheOpSeconds.With(op).Observe(time.Since(start).Seconds())
	if st == StatusUnavailable {
		telemetry.CacheDegradedTotal.Inc()
	}
}

// countRead folds a lookup outcome into the hit/miss counters. Decode errors
// and unreachable stores count as misses.
func (s *Store) countRead(st Status) {
	if st == StatusHit {
		s.hits.Add(1)
		telemetry.CacheHitsTotal.Inc()
		return
	}
	s.misses.Add(1)
	telemetry.CacheMissesTotal.Inc()
}

// lookup reads and decodes one entry without counting it
func (s *Store) lookup(ctx context.Context, fullKey string, c opConfig) Result {
	raw, err := s.client.Get(ctx, fullKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return Result{Status: StatusMiss}
	}
	if err != nil {
		log.Warn().Err(err).Str("key", fullKey).Msg("Cache read failed, treating as miss")
		return Result{Status: StatusUnavailable, Err: err}
	}

	if c.raw {
		return Result{Bytes: raw, Status: StatusHit}
	}

	data, err := unframe(raw)
	if err != nil {
		log.Warn().Err(err).Str("key", fullKey).Msg("Cache entry undecodable, treating as miss")
		return Result{Status: StatusDecodeError, Err: err}
	}
	return Result{Bytes: data, Status: StatusHit}
}

// encodeBody prepares a value for storage. body is what a lookup will hand
// back (JSON bytes, or the caller's bytes in raw mode); stored is the framed
// form written to the store.
func (s *Store) encodeBody(value interface{}, c opConfig) (body, stored []byte, err error) {
	if c.raw {
		b, ok := value.([]byte)
		if !ok {
			return nil, nil, fmt.Errorf("cache: raw mode requires []byte, got %T", value)
		}
		return b, b, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, nil, err
	}
	return data, frame(data, s.compressThreshold), nil
}

// put writes one encoded entry without telemetry
func (s *Store) put(ctx context.Context, fullKey string, value interface{}, c opConfig) OpResult {
	_, stored, err := s.encodeBody(value, c)
	if err != nil {
		log.Warn().Err(err).Str("key", fullKey).Msg("Cache value not encodable")
		return OpResult{Status: StatusDecodeError, Err: err}
	}

	if err := s.client.Set(ctx, fullKey, stored, c.ttl); err != nil {
		log.Warn().Err(err).Str("key", fullKey).Msg("Cache write failed")
		return OpResult{Status: StatusUnavailable, Err: err}
	}
	return OpResult{OK: true, Status: StatusStored}
}

// Lookup is the outcome-bearing form of Get: the Result says whether the
// answer is a hit, a miss, an undecodable entry, or a store failure.
func (s *Store) Lookup(ctx context.Context, key string, opts ...Option) Result {
	c := s.resolve(opts)
	start := time.Now()

	r := s.lookup(ctx, c.fullKey(key), c)
	s.countRead(r.Status)
	s.observe("get", start, r.Status)
	return r
}

// Get returns the cached bytes for key. Misses, undecodable entries and
// store failures all answer (nil, false).
func (s *Store) Get(ctx context.Context, key string, opts ...Option) ([]byte, bool) {
	r := s.Lookup(ctx, key, opts...)
	if !r.Hit() {
		return nil, false
	}
	return r.Bytes, true
}

// GetJSON decodes the cached entry into dst. False on miss, decode failure
// or store failure; dst is untouched in those cases unless json.Unmarshal
// partially wrote it.
func (s *Store) GetJSON(ctx context.Context, key string, dst interface{}, opts ...Option) bool {
	c := s.resolve(opts)
	start := time.Now()

	r := s.lookup(ctx, c.fullKey(key), c)
	if r.Hit() {
		if err := json.Unmarshal(r.Bytes, dst); err != nil {
			log.Warn().Err(err).Str("key", c.fullKey(key)).Msg("Cache entry undecodable, treating as miss")
			r = Result{Status: StatusDecodeError, Err: err}
		}
	}

	s.countRead(r.Status)
	s.observe("get", start, r.Status)
	return r.Hit()
}

// Put is the outcome-bearing form of Set.
func (s *Store) Put(ctx context.Context, key string, value interface{}, opts ...Option) OpResult {
	c := s.resolve(opts)
	start := time.Now()

	res := s.put(ctx, c.fullKey(key), value, c)
	s.observe("set", start, res.Status)
	return res
}

// Set stores value under key, JSON-serialized unless WithoutSerialization.
// False when the value cannot be encoded or the store is unreachable.
func (s *Store) Set(ctx context.Context, key string, value interface{}, opts ...Option) bool {
	return s.Put(ctx, key, value, opts...).OK
}

// Remove is the outcome-bearing form of Del. OK reports whether the key was
// present.
func (s *Store) Remove(ctx context.Context, key string, opts ...Option) OpResult {
	c := s.resolve(opts)
	start := time.Now()

	n, err := s.client.Del(ctx, c.fullKey(key))
	if err != nil {
		log.Warn().Err(err).Str("key", c.fullKey(key)).Msg("Cache delete failed")
		s.observe("del", start, StatusUnavailable)
		return OpResult{Status: StatusUnavailable, Err: err}
	}

	s.observe("del", start, StatusRemoved)
	return OpResult{OK: n > 0, Status: StatusRemoved}
}

// Del removes key. False when the key was absent or the store unreachable.
func (s *Store) Del(ctx context.Context, key string, opts ...Option) bool {
	return s.Remove(ctx, key, opts...).OK
}

// Exists reports whether key holds a live entry, false when unreachable.
func (s *Store) Exists(ctx context.Context, key string, opts ...Option) bool {
	c := s.resolve(opts)
	start := time.Now()

	ok, err := s.client.Exists(ctx, c.fullKey(key))
	if err != nil {
		log.Warn().Err(err).Str("key", c.fullKey(key)).Msg("Cache exists check failed")
		s.observe("exists", start, StatusUnavailable)
		return false
	}

	if ok {
		s.observe("exists", start, StatusHit)
	} else {
		s.observe("exists", start, StatusMiss)
	}
	return ok
}

// Expire resets the TTL of an existing key. False when the key is absent or
// the store unreachable.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration, opts ...Option) bool {
	c := s.resolve(opts)
	start := time.Now()

	ok, err := s.client.Expire(ctx, c.fullKey(key), ttl)
	if err != nil {
		log.Warn().Err(err).Str("key", c.fullKey(key)).Msg("Cache expire failed")
		s.observe("expire", start, StatusUnavailable)
		return false
	}

	if ok {
		s.observe("expire", start, StatusStored)
	} else {
		s.observe("expire", start, StatusMiss)
	}
	return ok
}

// MGet returns one slot per key in order, nil for misses. When the store is
// unreachable every slot is nil. Each slot counts toward hit/miss stats.
func (s *Store) MGet(ctx context.Context, keys []string, opts ...Option) [][]byte {
	c := s.resolve(opts)
	start := time.Now()

	values := make([][]byte, len(keys))
	if len(keys) == 0 {
		return values
	}

	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = c.fullKey(key)
	}

	raws, err := s.client.MGet(ctx, full...)
	if err != nil {
		log.Warn().Err(err).Int("keys", len(keys)).Msg("Cache batch read failed, treating as misses")
		for range keys {
			s.countRead(StatusUnavailable)
		}
		s.observe("mget", start, StatusUnavailable)
		return values
	}

	for i, raw := range raws {
		if raw == nil {
			s.countRead(StatusMiss)
			continue
		}
		if c.raw {
			values[i] = raw
			s.countRead(StatusHit)
			continue
		}
		data, err := unframe(raw)
		if err != nil {
			log.Warn().Err(err).Str("key", full[i]).Msg("Cache entry undecodable, treating as miss")
			s.countRead(StatusDecodeError)
			continue
		}
		values[i] = data
		s.countRead(StatusHit)
	}

	s.observe("mget", start, StatusHit)
	return values
}

// MSet stores all pairs with a shared TTL. Values are encoded before any
// write, so an unencodable value fails the whole batch without partials.
// A store failure may still leave a subset written on some backends.
func (s *Store) MSet(ctx context.Context, pairs map[string]interface{}, opts ...Option) bool {
	c := s.resolve(opts)
	start := time.Now()

	if len(pairs) == 0 {
		return true
	}

	encoded := make(map[string][]byte, len(pairs))
	for key, value := range pairs {
		_, stored, err := s.encodeBody(value, c)
		if err != nil {
			log.Warn().Err(err).Str("key", c.fullKey(key)).Msg("Cache value not encodable")
			s.observe("mset", start, StatusDecodeError)
			return false
		}
		encoded[c.fullKey(key)] = stored
	}

	if err := s.client.MSet(ctx, encoded, c.ttl); err != nil {
		log.Warn().Err(err).Int("keys", len(pairs)).Msg("Cache batch write failed")
		s.observe("mset", start, StatusUnavailable)
		return false
	}

	s.observe("mset", start, StatusStored)
	return true
}

// Invalidate is the outcome-bearing form of InvalidatePattern. It
// enumerates keys matching the glob inside the namespace, then deletes
// them. The two steps are not atomic: keys written between them survive.
func (s *Store) Invalidate(ctx context.Context, pattern string, opts ...Option) (int, OpResult) {
	c := s.resolve(opts)
	start := time.Now()

	fullPattern := c.fullKey(pattern)
	keys, err := s.client.Keys(ctx, fullPattern)
	if err != nil {
		log.Warn().Err(err).Str("pattern", fullPattern).Msg("Cache invalidation enumeration failed")
		s.observe("invalidate", start, StatusUnavailable)
		return 0, OpResult{Status: StatusUnavailable, Err: err}
	}
	if len(keys) == 0 {
		s.observe("invalidate", start, StatusRemoved)
		return 0, OpResult{OK: true, Status: StatusRemoved}
	}

	removed, err := s.client.Del(ctx, keys...)
	if err != nil {
		log.Warn().Err(err).Str("pattern", fullPattern).Msg("Cache invalidation delete failed")
		s.observe("invalidate", start, StatusUnavailable)
		return 0, OpResult{Status: StatusUnavailable, Err: err}
	}

	telemetry.CacheInvalidatedKeysTotal.Add(float64(removed))
	log.Debug().Str("pattern", fullPattern).Int64("keys", removed).Msg("Invalidated cache keys")
	s.observe("invalidate", start, StatusRemoved)
	return int(removed), OpResult{OK: true, Status: StatusRemoved}
}

// InvalidatePattern removes every key matching the glob inside the
// namespace, returning the number removed. 0 on store failure.
func (s *Store) InvalidatePattern(ctx context.Context, pattern string, opts ...Option) int {
	n, _ := s.Invalidate(ctx, pattern, opts...)
	return n
}

// Stats reports process-local hit/miss counters alongside store-wide key and
// memory figures. The store-wide figures are 0 while the store is
// unreachable; the counters keep their values.
func (s *Store) Stats(ctx context.Context) CacheStats {
	hits := s.hits.Load()
	misses := s.misses.Load()

	stats := CacheStats{TotalHits: hits, TotalMisses: misses, LastUpdated: time.Now()}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}

	if keys, err := s.client.DBSize(ctx); err == nil {
		stats.TotalKeys = keys
	} else {
		log.Debug().Err(err).Msg("Cache key count unavailable")
	}
	if mem, err := s.client.MemoryUsage(ctx); err == nil {
		stats.MemoryUsage = mem
	} else {
		log.Debug().Err(err).Msg("Cache memory usage unavailable")
	}

	return stats
}

// Flush removes every key in the backing store, not just this namespace.
// False when the store is unreachable.
func (s *Store) Flush(ctx context.Context) bool {
	start := time.Now()

	if err := s.client.FlushDB(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache flush failed")
		s.observe("flush", start, StatusUnavailable)
		return false
	}

	log.Info().Msg("Cache flushed")
	s.observe("flush", start, StatusRemoved)
	return true
}

// Cached is the cache-aside read path: return the cached bytes on a hit,
// otherwise run fetcher, store its value best-effort, and return the
// serialized value. Concurrent misses all invoke fetch; the last write
// wins. Fetcher and encoding errors are the only errors returned; store
// failures degrade silently.
func (s *Store) Cached(ctx context.Context, key string, fetcher func(context.Context) (interface{}, error), opts ...Option) ([]byte, error) {
	c := s.resolve(opts)
	start := time.Now()

	r := s.lookup(ctx, c.fullKey(key), c)
	s.countRead(r.Status)
	s.observe("cached", start, r.Status)
	if r.Hit() {
		return r.Bytes, nil
	}

	value, err := fetcher(ctx)
	if err != nil {
		return nil, err
	}

	body, stored, err := s.encodeBody(value, c)
	if err != nil {
		return nil, err
	}

	if err := s.client.Set(ctx, c.fullKey(key), stored, c.ttl); err != nil {
		log.Warn().Err(err).Str("key", c.fullKey(key)).Msg("Cache backfill failed")
	}

	return body, nil
}

// Close releases the backing client.
func (s *Store) Close() error {
	return s.client.Close()
}
