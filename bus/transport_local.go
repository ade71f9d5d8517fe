package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// LocalTransport fans out inside one process. Dispatch is synchronous on
// the publisher's goroutine, so per-topic order follows publish order.
// Used for single-node installs and tests.
type LocalTransport struct {
	mu       sync.RWMutex
	handlers map[string]map[uint64]func(topic string, payload []byte)
	nextID   atomic.Uint64
	closed   atomic.Bool
}

var _ Transport = (*LocalTransport)(nil)

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{
		handlers: make(map[string]map[uint64]func(topic string, payload []byte)),
	}
}

func (t *LocalTransport) Publish(_ context.Context, topic string, payload []byte) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, handler := range t.handlers[topic] {
		handler(topic, payload)
	}
	return nil
}

func (t *LocalTransport) Subscribe(topic string, handler func(topic string, payload []byte)) (func(), error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	id := t.nextID.Add(1)

	t.mu.Lock()
	if t.handlers[topic] == nil {
		t.handlers[topic] = make(map[uint64]func(topic string, payload []byte))
	}
	t.handlers[topic][id] = handler
	t.mu.Unlock()

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if m, ok := t.handlers[topic]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(t.handlers, topic)
			}
		}
	}
	return unsubscribe, nil
}

func (t *LocalTransport) Ping(_ context.Context) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	return nil
}

func (t *LocalTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.mu.Lock()
	t.handlers = make(map[string]map[uint64]func(topic string, payload []byte))
	t.mu.Unlock()
	return nil
}
