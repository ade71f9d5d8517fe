package sink

import (
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/palettekb/palette/cfg"
)

func TestBuild_UnknownType(t *testing.T) {
	_, err := Build(cfg.SinkConfiguration{Name: "x", Type: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown sink type")
	}
}

func TestBuild_RegisteredFactory(t *testing.T) {
	mock := &MockSink{}
	Register("test-build", func(cfg.SinkConfiguration) (Sink, error) {
		return mock, nil
	})

	s, err := Build(cfg.SinkConfiguration{Name: "x", Type: "test-build"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s != mock {
		t.Error("expected the registered factory's sink")
	}
}

func TestBuild_KafkaRequiresAddresses(t *testing.T) {
	_, err := Build(cfg.SinkConfiguration{Name: "k", Type: "kafka"})
	if err == nil {
		t.Fatal("expected error for kafka sink without addresses")
	}
}

func TestBuild_JetStreamRequiresAddresses(t *testing.T) {
	_, err := Build(cfg.SinkConfiguration{Name: "j", Type: "jetstream"})
	if err == nil {
		t.Fatal("expected error for jetstream sink without addresses")
	}
}

func TestNewKafkaSink(t *testing.T) {
	s, err := NewKafkaSink(KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		BatchSize:    50,
		BatchBytes:   2048,
		RequiredAcks: kafka.RequireOne,
	})
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	defer s.Close()

	if s.writer.BatchSize != 50 {
		t.Errorf("expected batch size 50, got %d", s.writer.BatchSize)
	}
	if s.writer.BatchBytes != 2048 {
		t.Errorf("expected batch bytes 2048, got %d", s.writer.BatchBytes)
	}
	if s.writer.RequiredAcks != kafka.RequireOne {
		t.Errorf("expected RequireOne acks, got %v", s.writer.RequiredAcks)
	}
	if s.writer.Async {
		t.Error("expected synchronous writes")
	}
}

func TestNewKafkaSink_Defaults(t *testing.T) {
	s, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	defer s.Close()

	if s.writer.BatchSize != DefaultKafkaBatchSize {
		t.Errorf("expected default batch size, got %d", s.writer.BatchSize)
	}
	if s.writer.BatchBytes != DefaultKafkaBatchBytes {
		t.Errorf("expected default batch bytes, got %d", s.writer.BatchBytes)
	}
}

func TestNewKafkaSink_EmptyBrokers(t *testing.T) {
	if _, err := NewKafkaSink(KafkaConfig{}); err == nil {
		t.Error("expected error for empty brokers")
	}
}

func TestStreamName(t *testing.T) {
	if got := streamName("palette.notifications"); got != "palette_notifications" {
		t.Errorf("expected palette_notifications, got %s", got)
	}
	if got := streamName("COMPONENT_UPDATED"); got != "COMPONENT_UPDATED" {
		t.Errorf("expected COMPONENT_UPDATED unchanged, got %s", got)
	}
}

func TestMockSink_RecordsAndResets(t *testing.T) {
	mock := &MockSink{}

	if err := mock.Publish("topic1", "key1", []byte("value1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.Publish("topic2", "key2", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := mock.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "topic1" || msgs[0].Key != "key1" || string(msgs[0].Value) != "value1" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Value != nil {
		t.Errorf("expected nil value, got %v", msgs[1].Value)
	}

	mock.Reset()
	if len(mock.Snapshot()) != 0 {
		t.Error("expected no messages after reset")
	}
}

func TestMockSink_PublishError(t *testing.T) {
	wantErr := errors.New("publish failed")
	mock := &MockSink{PublishErr: wantErr}

	if err := mock.Publish("t", "k", []byte("v")); err != wantErr {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
	if len(mock.Snapshot()) != 0 {
		t.Error("expected no messages recorded on error")
	}
}
