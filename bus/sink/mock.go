package sink

import "sync"

// MockSink records published messages for tests.
type MockSink struct {
	PublishErr error

	mu       sync.Mutex
	messages []MockMessage
}

// MockMessage is one recorded publish.
type MockMessage struct {
	Topic string
	Key   string
	Value []byte
}

func (m *MockSink) Publish(topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishErr != nil {
		return m.PublishErr
	}

	m.messages = append(m.messages, MockMessage{Topic: topic, Key: key, Value: value})
	return nil
}

func (m *MockSink) Close() error {
	return nil
}

// Snapshot returns a copy of everything recorded so far.
func (m *MockSink) Snapshot() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MockMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Reset clears all recorded messages.
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}
