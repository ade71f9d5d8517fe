package kvstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/encoding"
)

// Stored keys carry a prefix so future record families can share the store
const pebbleKeyPrefix = "/kv/"

const recordLockShards = 64

// pebbleRecord is the stored envelope. A zero ExpiresAt means no expiry.
type pebbleRecord struct {
	Value     []byte
	ExpiresAt int64
}

func (r *pebbleRecord) expired(now int64) bool {
	return r.ExpiresAt != 0 && r.ExpiresAt <= now
}

// PebbleOptions configures the embedded store
type PebbleOptions struct {
	CacheSizeMB     int64 // Block cache size
	MemTableSizeMB  int64 // Write buffer size
	DisableWAL      bool  // Only for testing!
	JanitorInterval time.Duration
}

// DefaultPebbleOptions returns options sized for a cache workload
func DefaultPebbleOptions(janitorInterval time.Duration) PebbleOptions {
	return PebbleOptions{
		CacheSizeMB:     32,
		MemTableSizeMB:  16,
		JanitorInterval: janitorInterval,
	}
}

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// PebbleStore implements Client on an embedded Pebble database. Values are
// msgpack envelopes carrying their expiry; expired records are dropped lazily
// on read and swept by a background janitor.
type PebbleStore struct {
	db   *pebble.DB
	path string

	// Expire rewrites the whole envelope, so single-key writes serialize
	// through a sharded lock to avoid losing a concurrent Set.
	recordLocks [recordLockShards]sync.Mutex

	closed atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
}

var _ Client = (*PebbleStore)(nil)

// NewPebble opens (or creates) the store at path
func NewPebble(path string, opts PebbleOptions) (*PebbleStore, error) {
	cache := pebble.NewCache(opts.CacheSizeMB << 20)
	defer cache.Unref() // DB will hold reference

	pebbleOpts := &pebble.Options{
		Cache:        cache,
		MemTableSize: uint64(opts.MemTableSizeMB << 20),
		DisableWAL:   opts.DisableWAL,
		Logger:       &pebbleLogger{},
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	s := &PebbleStore{
		db:     db,
		path:   path,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if opts.JanitorInterval > 0 {
		go s.janitor(opts.JanitorInterval)
	} else {
		close(s.doneCh)
	}

	log.Info().Str("path", path).Msg("Opened pebble cache store")
	return s, nil
}

func recordKey(key string) []byte {
	return []byte(pebbleKeyPrefix + key)
}

// recordLockFor returns the sharded mutex for a given key
func (s *PebbleStore) recordLockFor(key string) *sync.Mutex {
	return &s.recordLocks[xxhash.Sum64String(key)%recordLockShards]
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, nil when no bound exists
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}

// getRecord reads and decodes one envelope. found is false for absent keys;
// expired records are returned with found=true for the caller to handle.
func (s *PebbleStore) getRecord(key string) (pebbleRecord, bool, error) {
	val, closer, err := s.db.Get(recordKey(key))
	if err == pebble.ErrNotFound {
		return pebbleRecord{}, false, nil
	}
	if err != nil {
		return pebbleRecord{}, false, err
	}
	defer closer.Close()

	var rec pebbleRecord
	if err := encoding.Unmarshal(val, &rec); err != nil {
		return pebbleRecord{}, false, err
	}
	return rec, true, nil
}

func (s *PebbleStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	rec, found, err := s.getRecord(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	if rec.expired(time.Now().UnixNano()) {
		_ = s.db.Delete(recordKey(key), pebble.NoSync)
		return nil, ErrNotFound
	}

	return rec.Value, nil
}

func (s *PebbleStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	data, err := encoding.Marshal(&pebbleRecord{Value: value, ExpiresAt: expiresAt})
	if err != nil {
		return err
	}

	lock := s.recordLockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return s.db.Set(recordKey(key), data, pebble.NoSync)
}

func (s *PebbleStore) Del(_ context.Context, keys ...string) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	now := time.Now().UnixNano()
	batch := s.db.NewBatch()
	defer batch.Close()

	var removed int64
	for _, key := range keys {
		rec, found, err := s.getRecord(key)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}
		if err := batch.Delete(recordKey(key), nil); err != nil {
			return 0, err
		}
		if !rec.expired(now) {
			removed++
		}
	}

	if err := batch.Commit(pebble.NoSync); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *PebbleStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	lock := s.recordLockFor(key)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UnixNano()
	rec, found, err := s.getRecord(key)
	if err != nil {
		return false, err
	}
	if !found || rec.expired(now) {
		return false, nil
	}

	if ttl > 0 {
		rec.ExpiresAt = time.Now().Add(ttl).UnixNano()
	} else {
		rec.ExpiresAt = 0
	}

	data, err := encoding.Marshal(&rec)
	if err != nil {
		return false, err
	}
	if err := s.db.Set(recordKey(key), data, pebble.NoSync); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	values := make([][]byte, len(keys))
	for i, key := range keys {
		value, err := s.Get(ctx, key)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

func (s *PebbleStore) MSet(_ context.Context, pairs map[string][]byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for key, value := range pairs {
		data, err := encoding.Marshal(&pebbleRecord{Value: value, ExpiresAt: expiresAt})
		if err != nil {
			return err
		}
		if err := batch.Set(recordKey(key), data, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.NoSync)
}

func (s *PebbleStore) Keys(_ context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	g, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixNano()
	var matched []string
	err = s.scan(func(key string, rec *pebbleRecord) {
		if !rec.expired(now) && g.Match(key) {
			matched = append(matched, key)
		}
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func (s *PebbleStore) FlushDB(_ context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	prefix := []byte(pebbleKeyPrefix)
	return s.db.DeleteRange(prefix, prefixUpperBound(prefix), pebble.NoSync)
}

func (s *PebbleStore) DBSize(_ context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	now := time.Now().UnixNano()
	var count int64
	err := s.scan(func(_ string, rec *pebbleRecord) {
		if !rec.expired(now) {
			count++
		}
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *PebbleStore) MemoryUsage(_ context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	return int64(s.db.Metrics().DiskSpaceUsage()), nil
}

func (s *PebbleStore) Ping(_ context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *PebbleStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(s.stopCh)
	<-s.doneCh
	return s.db.Close()
}

// scan visits every stored record under the key prefix
func (s *PebbleStore) scan(visit func(key string, rec *pebbleRecord)) error {
	prefix := []byte(pebbleKeyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			continue
		}

		var rec pebbleRecord
		if err := encoding.Unmarshal(val, &rec); err != nil {
			continue
		}

		key := strings.TrimPrefix(string(iter.Key()), pebbleKeyPrefix)
		visit(key, &rec)
	}

	return iter.Error()
}

// janitor sweeps expired records until Close
func (s *PebbleStore) janitor(interval time.Duration) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.sweep(); err != nil {
				log.Warn().Err(err).Msg("Cache sweep failed")
			}
		}
	}
}

func (s *PebbleStore) sweep() error {
	now := time.Now().UnixNano()
	var expired []string
	err := s.scan(func(key string, rec *pebbleRecord) {
		if rec.expired(now) {
			expired = append(expired, key)
		}
	})
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, key := range expired {
		if err := batch.Delete(recordKey(key), nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return err
	}

	log.Debug().Int("records", len(expired)).Msg("Swept expired cache records")
	return nil
}
