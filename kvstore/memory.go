package kvstore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// memEntry is one stored value. A zero expiresAt means no expiry.
type memEntry struct {
	value     []byte
	expiresAt int64
}

func (e memEntry) expired(now int64) bool {
	return e.expiresAt != 0 && e.expiresAt <= now
}

// MemoryStore implements Client on a lock-free concurrent map. Expired
// entries are dropped lazily on read and swept by a background janitor.
type MemoryStore struct {
	entries *xsync.MapOf[string, memEntry]

	closed atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
}

var _ Client = (*MemoryStore)(nil)

// NewMemory creates an in-process store. A janitorInterval <= 0 disables the
// background sweep; expired entries then disappear only when read.
func NewMemory(janitorInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: xsync.NewMapOf[string, memEntry](),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor(janitorInterval)
	} else {
		close(s.doneCh)
	}

	return s
}

// deleteIfExpired removes the entry only while it is still expired, so a
// concurrent Set is never lost between observing expiry and deleting.
func (s *MemoryStore) deleteIfExpired(key string, now int64) {
	s.entries.Compute(key, func(old memEntry, loaded bool) (memEntry, bool) {
		if !loaded {
			return old, true
		}
		return old, old.expired(now)
	})
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	e, ok := s.entries.Load(key)
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UnixNano()
	if e.expired(now) {
		s.deleteIfExpired(key, now)
		return nil, ErrNotFound
	}

	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.entries.Store(key, memEntry{value: stored, expiresAt: expiresAt})
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	now := time.Now().UnixNano()
	var removed int64
	for _, key := range keys {
		if e, ok := s.entries.LoadAndDelete(key); ok && !e.expired(now) {
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	e, ok := s.entries.Load(key)
	if !ok {
		return false, nil
	}

	now := time.Now().UnixNano()
	if e.expired(now) {
		s.deleteIfExpired(key, now)
		return false, nil
	}

	return true, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	now := time.Now().UnixNano()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	updated := false
	s.entries.Compute(key, func(old memEntry, loaded bool) (memEntry, bool) {
		if !loaded {
			return old, true
		}
		if old.expired(now) {
			return old, true
		}
		updated = true
		return memEntry{value: old.value, expiresAt: expiresAt}, false
	})

	return updated, nil
}

func (s *MemoryStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
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

func (s *MemoryStore) MSet(ctx context.Context, pairs map[string][]byte, ttl time.Duration) error {
	for key, value := range pairs {
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	g, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixNano()
	var matched []string
	s.entries.Range(func(key string, e memEntry) bool {
		if !e.expired(now) && g.Match(key) {
			matched = append(matched, key)
		}
		return true
	})
	return matched, nil
}

func (s *MemoryStore) FlushDB(_ context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.entries.Clear()
	return nil
}

func (s *MemoryStore) DBSize(_ context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	now := time.Now().UnixNano()
	var count int64
	s.entries.Range(func(_ string, e memEntry) bool {
		if !e.expired(now) {
			count++
		}
		return true
	})
	return count, nil
}

func (s *MemoryStore) MemoryUsage(_ context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	var bytes int64
	s.entries.Range(func(key string, e memEntry) bool {
		bytes += int64(len(key) + len(e.value))
		return true
	})
	return bytes, nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(s.stopCh)
	<-s.doneCh
	return nil
}

// janitor sweeps expired entries until Close
func (s *MemoryStore) janitor(interval time.Duration) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := time.Now().UnixNano()
	swept := 0
	s.entries.Range(func(key string, e memEntry) bool {
		if e.expired(now) {
			s.deleteIfExpired(key, now)
			swept++
		}
		return true
	})

	if swept > 0 {
		log.Debug().Int("entries", swept).Msg("Swept expired cache entries")
	}
}
