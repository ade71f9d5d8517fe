package bus

import (
	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/bus/sink"
	"github.com/palettekb/palette/telemetry"
)

// mirrorQueueSize bounds the backlog one slow sink may build up before
// its copies start dropping.
const mirrorQueueSize = 256

type mirrorMsg struct {
	topic string
	key   string
	value []byte
}

// mirror couples one sink with a queue and a worker goroutine, keeping
// sink latency off the publish path. The queue channel is never closed;
// a publish racing Close enqueues into a buffer nobody drains instead of
// panicking.
type mirror struct {
	name     string
	sink     sink.Sink
	override string // fixed destination topic; empty publishes under the bus topic

	queue  chan mirrorMsg
	stopCh chan struct{}
	doneCh chan struct{}
}

func newMirror(name string, s sink.Sink, overrideTopic string) *mirror {
	m := &mirror{
		name:     name,
		sink:     s,
		override: overrideTopic,
		queue:    make(chan mirrorMsg, mirrorQueueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go m.run()
	return m
}

// enqueue hands one message to the worker without blocking. A full queue
// drops the copy; the primary publish already happened.
func (m *mirror) enqueue(topic, key string, value []byte) {
	if m.override != "" {
		topic = m.override
	}

	select {
	case m.queue <- mirrorMsg{topic: topic, key: key, value: value}:
	default:
		telemetry.SinkFailuresTotal.With(m.name).Inc()
		log.Debug().Str("sink", m.name).Str("topic", topic).Msg("Mirror queue full, dropping copy")
	}
}

func (m *mirror) run() {
	defer close(m.doneCh)

	for {
		select {
		case msg := <-m.queue:
			m.publish(msg)
		case <-m.stopCh:
			// Drain whatever was queued before the stop, then exit.
			for {
				select {
				case msg := <-m.queue:
					m.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (m *mirror) publish(msg mirrorMsg) {
	if err := m.sink.Publish(msg.topic, msg.key, msg.value); err != nil {
		telemetry.SinkFailuresTotal.With(m.name).Inc()
		log.Warn().Err(err).Str("sink", m.name).Str("topic", msg.topic).Msg("Mirror publish failed")
	}
}

// stop drains the queue, waits for the worker, then closes the sink.
func (m *mirror) stop() {
	close(m.stopCh)
	<-m.doneCh

	if err := m.sink.Close(); err != nil {
		log.Warn().Err(err).Str("sink", m.name).Msg("Failed to close sink")
	}
}
