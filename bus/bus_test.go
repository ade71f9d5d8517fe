package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palettekb/palette/bus/sink"
	"github.com/palettekb/palette/cfg"
)

func newTestBus(t *testing.T, config cfg.BusConfiguration) *Bus {
	t.Helper()

	if config.Transport == "" {
		config.Transport = cfg.TransportLocal
	}

	b, err := New(NewLocalTransport(), config, "test-origin")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func recv(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()

	select {
	case n, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func TestBus_PublishSubscribeRoundTrip(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, []Topic{TopicComponentCreated})
	require.NoError(t, err)

	b.PublishComponentUpdate(ctx, UpdateCreated, "btn-1", "Button", []string{"props"})

	n := recv(t, ch)
	update, ok := n.(ComponentUpdate)
	require.True(t, ok, "expected ComponentUpdate, got %T", n)
	assert.Equal(t, UpdateCreated, update.UpdateType)
	assert.Equal(t, "btn-1", update.ComponentID)
	assert.Equal(t, "Button", update.ComponentName)
	assert.Equal(t, []string{"props"}, update.ChangedFields)
	assert.False(t, update.Timestamp.IsZero())
}

func TestBus_FanInMergesTopics(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, []Topic{TopicComponentUpdated, TopicManifestRebuilt})
	require.NoError(t, err)

	b.PublishComponentUpdate(ctx, UpdateUpdated, "c1", "Card", nil)
	b.PublishManifestUpdate(ctx, UpdateRebuilt, "7", 42)

	first := recv(t, ch)
	second := recv(t, ch)

	_, isComponent := first.(ComponentUpdate)
	require.True(t, isComponent)
	manifest, isManifest := second.(ManifestUpdate)
	require.True(t, isManifest)
	assert.Equal(t, 42, manifest.ComponentCount)
}

func TestBus_FanOutIndependentStreams(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})
	ctx := context.Background()

	chA, err := b.Subscribe(ctx, []Topic{TopicComponentDeleted})
	require.NoError(t, err)
	chB, err := b.Subscribe(ctx, []Topic{TopicComponentDeleted})
	require.NoError(t, err)

	b.PublishComponentUpdate(ctx, UpdateDeleted, "gone-1", "Gone", nil)

	assert.Equal(t, "gone-1", recv(t, chA).(ComponentUpdate).ComponentID)
	assert.Equal(t, "gone-1", recv(t, chB).(ComponentUpdate).ComponentID)
}

func TestBus_FilterAppliedBusSide(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, []Topic{TopicComponentUpdated},
		WithFilter(Filter{ComponentNames: []string{"Button"}}))
	require.NoError(t, err)

	b.PublishComponentUpdate(ctx, UpdateUpdated, "m1", "Modal", nil)
	b.PublishComponentUpdate(ctx, UpdateUpdated, "b1", "Button", nil)

	n := recv(t, ch)
	assert.Equal(t, "Button", n.(ComponentUpdate).ComponentName)

	select {
	case extra := <-ch:
		t.Fatalf("filtered notification leaked through: %v", extra)
	default:
	}
}

func TestBus_NonThrowingPublish(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})
	ctx := context.Background()

	assert.NotPanics(t, func() {
		b.Publish(ctx, nil)

		var typed *ComponentUpdate
		b.Publish(ctx, typed)

		b.Publish(ctx, ComponentUpdate{UpdateType: "renamed"})
		b.Publish(ctx, ManifestUpdate{UpdateType: UpdateDeprecated})
	})
}

func TestBus_TryPublishOutcomes(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})
	ctx := context.Background()

	assert.NoError(t, b.TryPublish(ctx, SystemStatus{Status: "healthy"}))
	assert.ErrorIs(t, b.TryPublish(ctx, nil), ErrUnroutable)
	assert.ErrorIs(t, b.TryPublish(ctx, ComponentUpdate{UpdateType: "renamed"}), ErrUnroutable)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.TryPublish(ctx, SystemStatus{Status: "healthy"}), ErrTransportClosed)
}

func TestBus_SlowConsumerDrops(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{BufferSize: 1})
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, []Topic{TopicComponentCreated})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		b.PublishComponentUpdate(ctx, UpdateCreated, fmt.Sprintf("c%d", i), "C", nil)
	}

	// Buffer held exactly one; the rest were dropped, not queued
	first := recv(t, ch)
	assert.Equal(t, "c0", first.(ComponentUpdate).ComponentID)

	select {
	case n := <-ch:
		t.Fatalf("expected drops beyond the buffer, got %v", n)
	default:
	}
}

func TestBus_PerTopicOrdering(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{BufferSize: 32})
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, []Topic{TopicComponentUpdated})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		b.PublishComponentUpdate(ctx, UpdateUpdated, fmt.Sprintf("c%d", i), "C", nil)
	}

	for i := 0; i < 10; i++ {
		n := recv(t, ch)
		assert.Equal(t, fmt.Sprintf("c%d", i), n.(ComponentUpdate).ComponentID)
	}
}

func TestBus_DuplicateTopicsSubscribeOnce(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, []Topic{TopicComponentCreated, TopicComponentCreated})
	require.NoError(t, err)

	b.PublishComponentUpdate(ctx, UpdateCreated, "once", "Once", nil)

	recv(t, ch)
	select {
	case n := <-ch:
		t.Fatalf("duplicate delivery: %v", n)
	default:
	}
}

func TestBus_SubscribeAllTopicsByDefault(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, nil)
	require.NoError(t, err)

	b.PublishSystemStatus(ctx, "healthy", "all good")
	b.PublishManifestUpdate(ctx, UpdateUpdated, "3", 10)

	status, ok := recv(t, ch).(SystemStatus)
	require.True(t, ok)
	assert.Equal(t, "test-origin", status.Origin)

	_, ok = recv(t, ch).(ManifestUpdate)
	require.True(t, ok)
}

func TestBus_UnknownTopicRejected(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})

	_, err := b.Subscribe(context.Background(), []Topic{Topic("NOT_A_TOPIC")})
	assert.Error(t, err)
}

func TestBus_ContextCancelClosesStream(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx, []Topic{TopicComponentCreated})
	require.NoError(t, err)

	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "stream should close after cancel")

	// Publishing afterwards must neither panic nor deliver
	assert.NotPanics(t, func() {
		b.PublishComponentUpdate(context.Background(), UpdateCreated, "late", "Late", nil)
	})
}

func TestBus_CloseClosesStreams(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})

	ch, err := b.Subscribe(context.Background(), []Topic{TopicSystemStatus})
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close is idempotent")

	_, open := <-ch
	assert.False(t, open)

	_, err = b.Subscribe(context.Background(), []Topic{TopicSystemStatus})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_HealthCheck(t *testing.T) {
	b := newTestBus(t, cfg.BusConfiguration{})

	assert.True(t, b.HealthCheck(context.Background()))

	require.NoError(t, b.Close())
	assert.False(t, b.HealthCheck(context.Background()), "health fails once the transport is down")
}

func TestBus_MirrorsToSinks(t *testing.T) {
	mock := &sink.MockSink{}
	sink.Register("mock", func(cfg.SinkConfiguration) (sink.Sink, error) {
		return mock, nil
	})

	b := newTestBus(t, cfg.BusConfiguration{
		Sinks: []cfg.SinkConfiguration{{Name: "mirror", Type: "mock"}},
	})
	ctx := context.Background()

	b.PublishComponentUpdate(ctx, UpdateUpdated, "btn-9", "Button", nil)

	require.Eventually(t, func() bool {
		return len(mock.Snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	msg := mock.Snapshot()[0]
	assert.Equal(t, string(TopicComponentUpdated), msg.Topic)
	assert.Equal(t, "btn-9", msg.Key, "mirrors partition by component id")
	assert.Contains(t, string(msg.Value), `"componentId":"btn-9"`)
}

func TestBus_MirrorTopicOverride(t *testing.T) {
	mock := &sink.MockSink{}
	sink.Register("mock", func(cfg.SinkConfiguration) (sink.Sink, error) {
		return mock, nil
	})

	b := newTestBus(t, cfg.BusConfiguration{
		Sinks: []cfg.SinkConfiguration{{Name: "firehose", Type: "mock", Topic: "palette.notifications"}},
	})

	b.PublishSystemStatus(context.Background(), "healthy", "ok")

	require.Eventually(t, func() bool {
		return len(mock.Snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "palette.notifications", mock.Snapshot()[0].Topic)
}

func TestBus_SinkFailureDoesNotAffectDelivery(t *testing.T) {
	mock := &sink.MockSink{PublishErr: assert.AnError}
	sink.Register("mock", func(cfg.SinkConfiguration) (sink.Sink, error) {
		return mock, nil
	})

	b := newTestBus(t, cfg.BusConfiguration{
		Sinks: []cfg.SinkConfiguration{{Name: "broken", Type: "mock"}},
	})
	ctx := context.Background()

	ch, err := b.Subscribe(ctx, []Topic{TopicComponentCreated})
	require.NoError(t, err)

	b.PublishComponentUpdate(ctx, UpdateCreated, "c1", "Card", nil)

	assert.Equal(t, "c1", recv(t, ch).(ComponentUpdate).ComponentID)
}

func TestBus_UnknownSinkTypeFailsConstruction(t *testing.T) {
	_, err := New(NewLocalTransport(), cfg.BusConfiguration{
		Transport: cfg.TransportLocal,
		Sinks:     []cfg.SinkConfiguration{{Name: "x", Type: "carrier-pigeon"}},
	}, "test-origin")
	assert.Error(t, err)
}
