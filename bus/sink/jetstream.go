package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/palettekb/palette/cfg"
)

const jetstreamPublishTimeout = 5 * time.Second

func init() {
	Register("jetstream", func(config cfg.SinkConfiguration) (Sink, error) {
		if len(config.Addresses) == 0 {
			return nil, fmt.Errorf("jetstream sink requires a server address")
		}
		return NewJetStreamSink(strings.Join(config.Addresses, ","))
	})
}

// JetStreamSink mirrors notifications into NATS JetStream, giving consumers
// a replayable stream where the primary transport is fire-and-forget.
type JetStreamSink struct {
	nc *nats.Conn
	js jetstream.JetStream

	mu      sync.Mutex
	ensured map[string]bool
}

// NewJetStreamSink connects and prepares a JetStream context.
func NewJetStreamSink(url string) (*JetStreamSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("jetstream sink connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	return &JetStreamSink{nc: nc, js: js, ensured: make(map[string]bool)}, nil
}

func (s *JetStreamSink) Publish(topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), jetstreamPublishTimeout)
	defer cancel()

	if err := s.ensureStream(ctx, topic); err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: topic,
		Data:    value,
		Header:  nats.Header{"key": []string{key}},
	}

	if _, err := s.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("jetstream publish to %s: %w", topic, err)
	}
	return nil
}

// ensureStream creates the per-topic stream once per process lifetime.
func (s *JetStreamSink) ensureStream(ctx context.Context, topic string) error {
	s.mu.Lock()
	done := s.ensured[topic]
	s.mu.Unlock()
	if done {
		return nil
	}

	name := streamName(topic)
	_, err := s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{topic},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}

	s.mu.Lock()
	s.ensured[topic] = true
	s.mu.Unlock()
	return nil
}

func (s *JetStreamSink) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// streamName maps a topic to a valid stream name; JetStream forbids "." in
// stream names.
func streamName(topic string) string {
	return strings.ReplaceAll(topic, ".", "_")
}
