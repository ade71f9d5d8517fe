package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Trip once half the recent calls failed, but only with enough traffic to judge
const (
	breakerMinRequests      = 5
	breakerFailureThreshold = 0.5
)

// Breaker decorates a Client with a circuit breaker so a dead backing store
// fails fast instead of stalling every request on connect timeouts. While the
// circuit is open, operations return gobreaker.ErrOpenState; the cache layer
// treats that like any other store error and answers neutrally.
type Breaker struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

var _ Client = (*Breaker)(nil)

// NewBreaker wraps an existing client. Lookup misses count as successes; only
// transport and server errors trip the circuit.
func NewBreaker(inner Client) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kvstore",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Backing store circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})

	return &Breaker{inner: inner, cb: cb}
}

func (b *Breaker) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (b *Breaker) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Set(ctx, key, value, ttl)
	})
	return err
}

func (b *Breaker) Del(ctx context.Context, keys ...string) (int64, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Del(ctx, keys...)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *Breaker) Exists(ctx context.Context, key string) (bool, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (b *Breaker) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Expire(ctx, key, ttl)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (b *Breaker) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.MGet(ctx, keys...)
	})
	if err != nil {
		return nil, err
	}
	return v.([][]byte), nil
}

func (b *Breaker) MSet(ctx context.Context, pairs map[string][]byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.MSet(ctx, pairs, ttl)
	})
	return err
}

func (b *Breaker) Keys(ctx context.Context, pattern string) ([]string, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Keys(ctx, pattern)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (b *Breaker) FlushDB(ctx context.Context) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.FlushDB(ctx)
	})
	return err
}

func (b *Breaker) DBSize(ctx context.Context) (int64, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.DBSize(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *Breaker) MemoryUsage(ctx context.Context) (int64, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.MemoryUsage(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *Breaker) Ping(ctx context.Context) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Ping(ctx)
	})
	return err
}

func (b *Breaker) Close() error {
	return b.inner.Close()
}
