package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const natsPingTimeout = 2 * time.Second

// NATSTransport maps topics to NATS subjects over a dedicated connection
// pair: one for publishing, one for subscriptions, so a slow subscriber
// callback never backs up the publish path.
type NATSTransport struct {
	pub *nats.Conn
	sub *nats.Conn
}

var _ Transport = (*NATSTransport)(nil)

// NewNATSTransport connects both halves of the pair. The initial connect
// retries in the background, so a bus can start before its broker.
func NewNATSTransport(url string) (*NATSTransport, error) {
	pub, err := connectNATS(url, "publisher")
	if err != nil {
		return nil, fmt.Errorf("bus: publisher connect: %w", err)
	}

	sub, err := connectNATS(url, "subscriber")
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("bus: subscriber connect: %w", err)
	}

	log.Info().Str("url", url).Msg("NATS transport connected")
	return &NATSTransport{pub: pub, sub: sub}, nil
}

func connectNATS(url, role string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("palette-"+role),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("role", role).Msg("NATS connection lost")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("role", role).Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
}

func (t *NATSTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.pub.Publish(topic, payload)
}

func (t *NATSTransport) Subscribe(topic string, handler func(topic string, payload []byte)) (func(), error) {
	sub, err := t.sub.Subscribe(topic, func(m *nats.Msg) {
		handler(m.Subject, m.Data)
	})
	if err != nil {
		return nil, err
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("NATS unsubscribe failed")
		}
	}, nil
}

// Ping performs a flush round-trip on the publisher connection.
func (t *NATSTransport) Ping(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, natsPingTimeout)
		defer cancel()
	}

	if !t.sub.IsConnected() {
		return nats.ErrDisconnected
	}
	return t.pub.FlushWithContext(ctx)
}

func (t *NATSTransport) Close() error {
	if err := t.pub.Flush(); err != nil {
		log.Debug().Err(err).Msg("NATS publish flush on close failed")
	}
	t.pub.Close()
	t.sub.Close()
	return nil
}
