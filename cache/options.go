package cache

import "time"

// opConfig carries per-call overrides resolved against the store defaults
type opConfig struct {
	ttl    time.Duration
	prefix string
	raw    bool
}

// Option adjusts a single cache operation.
type Option func(*opConfig)

// WithTTL overrides the store's default TTL for this operation. A zero or
// negative duration stores the key without expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *opConfig) {
		c.ttl = ttl
	}
}

// WithPrefix overrides the store's key namespace for this operation. An empty
// prefix addresses un-namespaced keys.
func WithPrefix(prefix string) Option {
	return func(c *opConfig) {
		c.prefix = prefix
	}
}

// WithoutSerialization stores and fetches raw bytes, skipping JSON encoding
// and compression. Values passed to Set must be []byte in this mode.
func WithoutSerialization() Option {
	return func(c *opConfig) {
		c.raw = true
	}
}

func (s *Store) resolve(opts []Option) opConfig {
	c := opConfig{ttl: s.defaultTTL, prefix: s.prefix}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// fullKey namespaces a logical key
func (c opConfig) fullKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}
