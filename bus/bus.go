// Package bus is the topic-based notification fabric between the knowledge
// base and its consumers. Publishing never returns an error to the caller;
// delivery is at-most-once with per-topic, per-publisher ordering.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/bus/sink"
	"github.com/palettekb/palette/cfg"
	"github.com/palettekb/palette/telemetry"
)

// defaultBufferSize is the per-subscriber channel buffer when the
// configuration does not set one. Sized for typical bursts; subscribers
// that fall behind have notifications dropped rather than stalling the
// transport.
const defaultBufferSize = 16

// ErrBusClosed is returned by Subscribe after Close.
var ErrBusClosed = errors.New("bus: closed")

// ErrUnroutable marks a nil notification or one whose discriminant maps to
// no topic.
var ErrUnroutable = errors.New("bus: unroutable notification")

// subscription is one consumer's merged stream.
type subscription struct {
	id     uint64
	filter *Filter
	ch     chan Notification
	unsubs []func()
	done   chan struct{}

	// mu orders in-flight deliveries against close so the channel never
	// sees a send after it is closed.
	mu     sync.RWMutex
	closed bool
}

// deliver hands one notification to the consumer without blocking.
func (s *subscription) deliver(n Notification) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.ch <- n:
		return true
	default:
		return false
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	close(s.done)
}

// Bus routes typed notifications onto topics over one transport and mirrors
// every published message to the configured sinks.
type Bus struct {
	transport Transport
	mirrors   []*mirror
	origin    string
	bufSize   int

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID atomic.Uint64
	closed atomic.Bool
}

// New assembles a bus over transport with the configured sinks. On error the
// caller keeps ownership of transport; on success Close tears it down.
func New(transport Transport, config cfg.BusConfiguration, origin string) (*Bus, error) {
	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}

	b := &Bus{
		transport: transport,
		origin:    origin,
		bufSize:   bufSize,
		subs:      make(map[uint64]*subscription),
	}

	for _, sinkConfig := range config.Sinks {
		s, err := sink.Build(sinkConfig)
		if err != nil {
			for _, m := range b.mirrors {
				m.stop()
			}
			return nil, fmt.Errorf("bus: sink %q: %w", sinkConfig.Name, err)
		}

		name := sinkConfig.Name
		if name == "" {
			name = sinkConfig.Type
		}
		b.mirrors = append(b.mirrors, newMirror(name, s, sinkConfig.Topic))

		log.Info().Str("sink", name).Str("type", sinkConfig.Type).Msg("Added notification sink")
	}

	log.Info().
		Str("transport", string(config.Transport)).
		Int("sinks", len(b.mirrors)).
		Msg("Notification bus ready")

	return b, nil
}

// Publish routes n to its topic. Nil or unroutable notifications are logged
// and dropped; transport failures are logged and counted. Publish never
// fails to the caller.
func (b *Bus) Publish(ctx context.Context, n Notification) {
	_ = b.TryPublish(ctx, n)
}

// TryPublish is Publish with the swallowed outcome surfaced: ErrUnroutable
// for unusable input, otherwise whatever the transport reported. Used where
// the caller coordinates dependent state on the publish.
func (b *Bus) TryPublish(ctx context.Context, n Notification) error {
	start := time.Now()

	v, ok := normalize(n)
	if !ok {
		log.Warn().Msg("Dropping nil notification")
		telemetry.BusPublishFailuresTotal.With("unroutable").Inc()
		return ErrUnroutable
	}

	topic, ok := v.route()
	if !ok {
		log.Warn().Str("type", fmt.Sprintf("%T", v)).Msg("Dropping notification with unknown update type")
		telemetry.BusPublishFailuresTotal.With("unroutable").Inc()
		return ErrUnroutable
	}

	payload, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("topic", string(topic)).Msg("Dropping unserializable notification")
		telemetry.BusPublishFailuresTotal.With(string(topic)).Inc()
		return err
	}

	pubErr := b.transport.Publish(ctx, string(topic), payload)
	if pubErr != nil {
		log.Warn().Err(pubErr).Str("topic", string(topic)).Msg("Notification publish failed")
		telemetry.BusPublishFailuresTotal.With(string(topic)).Inc()
	} else {
		telemetry.BusPublishedTotal.With(string(topic)).Inc()
	}
	telemetry.BusPublishSeconds.Observe(time.Since(start).Seconds())

	for _, m := range b.mirrors {
		m.enqueue(string(topic), v.key(), payload)
	}

	return pubErr
}

// PublishComponentUpdate publishes a component lifecycle notification.
func (b *Bus) PublishComponentUpdate(ctx context.Context, updateType UpdateType, componentID, componentName string, changedFields []string) {
	b.Publish(ctx, ComponentUpdate{
		UpdateType:    updateType,
		ComponentID:   componentID,
		ComponentName: componentName,
		ChangedFields: changedFields,
		Timestamp:     time.Now().UTC(),
	})
}

// PublishManifestUpdate publishes a manifest-wide notification.
func (b *Bus) PublishManifestUpdate(ctx context.Context, updateType UpdateType, version string, componentCount int) {
	b.Publish(ctx, ManifestUpdate{
		UpdateType:     updateType,
		Version:        version,
		ComponentCount: componentCount,
		Timestamp:      time.Now().UTC(),
	})
}

// PublishSystemStatus publishes a process-level status notification.
func (b *Bus) PublishSystemStatus(ctx context.Context, status, message string) {
	b.Publish(ctx, SystemStatus{
		Status:    status,
		Message:   message,
		Origin:    b.origin,
		Timestamp: time.Now().UTC(),
	})
}

// PublishCacheInvalidation publishes an invalidation summary on the
// reserved CACHE_INVALIDATED topic.
func (b *Bus) PublishCacheInvalidation(ctx context.Context, patterns []string, keysDropped int, reason string) {
	b.Publish(ctx, CacheInvalidation{
		Patterns:    patterns,
		KeysDropped: keysDropped,
		Reason:      reason,
		Origin:      b.origin,
		Timestamp:   time.Now().UTC(),
	})
}

// SubscribeOption adjusts one subscription.
type SubscribeOption func(*subOptions)

type subOptions struct {
	filter *Filter
}

// WithFilter delivers only notifications matching f.
func WithFilter(f Filter) SubscribeOption {
	return func(o *subOptions) {
		o.filter = &f
	}
}

// Subscribe opens a merged stream over the given topics (all topics when
// none are named). The channel closes when ctx is cancelled or the bus
// closes; the consumer just ranges over it. Slow consumers lose
// notifications rather than blocking other subscribers.
func (b *Bus) Subscribe(ctx context.Context, topics []Topic, opts ...SubscribeOption) (<-chan Notification, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	if len(topics) == 0 {
		topics = AllTopics()
	}
	for _, topic := range topics {
		if !ValidTopic(string(topic)) {
			return nil, fmt.Errorf("bus: unknown topic %q", topic)
		}
	}

	var o subOptions
	for _, opt := range opts {
		opt(&o)
	}

	sub := &subscription{
		id:     b.nextID.Add(1),
		filter: o.filter,
		ch:     make(chan Notification, b.bufSize),
		done:   make(chan struct{}),
	}

	seen := make(map[Topic]struct{}, len(topics))
	for _, topic := range topics {
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}

		unsub, err := b.transport.Subscribe(string(topic), func(topicName string, payload []byte) {
			b.dispatch(sub, topicName, payload)
		})
		if err != nil {
			for _, u := range sub.unsubs {
				u()
			}
			return nil, fmt.Errorf("bus: subscribe %s: %w", topic, err)
		}
		sub.unsubs = append(sub.unsubs, unsub)
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		for _, u := range sub.unsubs {
			u()
		}
		return nil, ErrBusClosed
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	telemetry.BusSubscriptions.Inc()

	go func() {
		select {
		case <-ctx.Done():
			b.drop(sub)
		case <-sub.done:
			// closed by Bus.Close
		}
	}()

	return sub.ch, nil
}

// dispatch decodes a transport payload and offers it to one subscription.
// Runs on the transport's goroutine.
func (b *Bus) dispatch(sub *subscription, topicName string, payload []byte) {
	n, err := decodeNotification(Topic(topicName), payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topicName).Msg("Dropping undecodable notification")
		return
	}

	if !Matches(n, sub.filter) {
		return
	}

	if sub.deliver(n) {
		telemetry.BusDeliveredTotal.With(topicName).Inc()
	} else {
		telemetry.BusDroppedTotal.With(topicName).Inc()
		log.Debug().Str("topic", topicName).Uint64("subscription", sub.id).Msg("Subscriber buffer full, dropping notification")
	}
}

// drop tears down one subscription after its context is cancelled.
func (b *Bus) drop(sub *subscription) {
	b.mu.Lock()
	_, tracked := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()

	if !tracked {
		return
	}

	for _, u := range sub.unsubs {
		u()
	}
	sub.close()
	telemetry.BusSubscriptions.Dec()
}

// Origin returns the process identity stamped on produced notifications.
func (b *Bus) Origin() string {
	return b.origin
}

// HealthCheck publishes a nonce ping on HEALTH_CHECK and verifies transport
// liveness. False on any failure, never a panic.
func (b *Bus) HealthCheck(ctx context.Context) bool {
	ping := HealthPing{
		Nonce:     uuid.NewString(),
		Origin:    b.origin,
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(ping)
	if err != nil {
		log.Warn().Err(err).Msg("Health ping marshal failed")
		return false
	}

	if err := b.transport.Publish(ctx, string(TopicHealthCheck), payload); err != nil {
		log.Warn().Err(err).Msg("Health ping publish failed")
		telemetry.BusPublishFailuresTotal.With(string(TopicHealthCheck)).Inc()
		return false
	}
	telemetry.BusPublishedTotal.With(string(TopicHealthCheck)).Inc()

	if err := b.transport.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Transport ping failed")
		return false
	}
	return true
}

// Close ends every subscription, the transport, and the sinks. Idempotent.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[uint64]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		for _, u := range sub.unsubs {
			u()
		}
		sub.close()
		telemetry.BusSubscriptions.Dec()
	}

	var firstErr error
	if err := b.transport.Close(); err != nil {
		log.Warn().Err(err).Msg("Transport close failed")
		firstErr = err
	}

	for _, m := range b.mirrors {
		m.stop()
	}

	log.Info().Msg("Notification bus closed")
	return firstErr
}
