// Package sink mirrors published notifications to external systems.
// Sinks are best-effort: the bus logs and counts their failures but never
// lets them affect the primary publish path.
package sink

import (
	"fmt"
	"sync"

	"github.com/palettekb/palette/cfg"
)

// Sink receives a copy of every published notification.
type Sink interface {
	// Publish sends one message. key is a partition/routing hint; same
	// key means same partition where the sink supports it.
	Publish(topic, key string, value []byte) error
	// Close releases the sink's resources.
	Close() error
}

// Factory builds a Sink from its configuration block.
type Factory func(config cfg.SinkConfiguration) (Sink, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a sink type available to Build. Implementations register
// themselves from init.
func Register(sinkType string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[sinkType] = factory
}

// Build instantiates the sink named by config.Type.
func Build(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, ok := factories[config.Type]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("sink: unknown type %q", config.Type)
	}
	return factory(config)
}
