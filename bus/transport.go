package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/palettekb/palette/cfg"
)

// ErrTransportClosed is returned by transport operations after Close.
var ErrTransportClosed = errors.New("bus: transport closed")

// Transport moves raw topic payloads between publishers and subscribers.
// Handlers run on transport goroutines and must not block; the payload
// slice is only valid for the duration of the call.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) (func(), error)
	Ping(ctx context.Context) error
	Close() error
}

// NewTransport builds the transport named by the configuration.
func NewTransport(config cfg.BusConfiguration) (Transport, error) {
	switch config.Transport {
	case cfg.TransportLocal:
		return NewLocalTransport(), nil
	case cfg.TransportNATS:
		return NewNATSTransport(config.NATSURL)
	default:
		return nil, fmt.Errorf("bus: unknown transport %q", config.Transport)
	}
}
