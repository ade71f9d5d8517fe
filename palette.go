// Package palette wires the cache-aside store, the notification bus, the
// subscriber registry and the change coordinator into one Service with a
// single lifecycle. Nothing in here is a package-level singleton; every
// dependency is built from the Config handed to New and torn down by Close.
package palette

import (
	"fmt"
	"io"
	"os"

	"github.com/palettekb/palette/bus"
	"github.com/palettekb/palette/cache"
	"github.com/palettekb/palette/cfg"
	"github.com/palettekb/palette/coordinator"
	"github.com/palettekb/palette/kvstore"
	"github.com/palettekb/palette/registry"
	"github.com/palettekb/palette/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service owns the full subsystem: one kvstore client, one bus transport,
// and the layers built on top of them. Construct with New, release with Close.
type Service struct {
	config      *cfg.Config
	store       *cache.Store
	bus         *bus.Bus
	registry    *registry.Registry
	coordinator *coordinator.Coordinator
	collector   *cache.StatsCollector

	closed bool
}

// New builds the subsystem bottom-up: backing client, cache store, bus
// transport, bus, registry, coordinator. On any failure the layers already
// built are closed before returning.
func New(config *cfg.Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("palette: invalid configuration: %w", err)
	}

	client, err := kvstore.New(config)
	if err != nil {
		return nil, fmt.Errorf("palette: kvstore: %w", err)
	}
	store := cache.NewStore(client, config.Cache)

	transport, err := bus.NewTransport(config.Bus)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("palette: transport: %w", err)
	}
	b, err := bus.New(transport, config.Bus, config.Origin)
	if err != nil {
		transport.Close()
		store.Close()
		return nil, err
	}

	svc := &Service{
		config:      config,
		store:       store,
		bus:         b,
		registry:    registry.New(),
		coordinator: coordinator.New(store, b),
	}

	if config.Prometheus.Enabled {
		svc.collector = cache.NewStatsCollector(store, cache.DefaultStatsInterval)
		svc.collector.Start()
	}

	log.Info().
		Str("origin", config.Origin).
		Str("backend", string(config.Cache.Backend)).
		Str("transport", string(config.Bus.Transport)).
		Msg("Palette service ready")
	return svc, nil
}

// Cache returns the cache-aside store.
func (s *Service) Cache() *cache.Store { return s.store }

// Bus returns the notification bus.
func (s *Service) Bus() *bus.Bus { return s.bus }

// Registry returns the advisory subscriber registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Coordinator returns the invalidate-then-notify coordinator.
func (s *Service) Coordinator() *coordinator.Coordinator { return s.coordinator }

// Config returns the configuration the service was built from.
func (s *Service) Config() *cfg.Config { return s.config }

// Close tears the service down in reverse construction order. Safe to call
// more than once.
func (s *Service) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.collector != nil {
		s.collector.Stop()
	}

	var firstErr error
	if err := s.bus.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	log.Info().Msg("Palette service closed")
	return firstErr
}

// SetupLogging configures the global zerolog logger from the [logging]
// section and stamps every line with the process origin.
func SetupLogging(config *cfg.Config) {
	var writer io.Writer = zerolog.NewConsoleWriter()
	if config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("origin", config.Origin).
		Logger()

	if config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}
}

// SetupTelemetry initializes prometheus registration per the [prometheus]
// section. Metrics stay no-ops when disabled.
func SetupTelemetry(config *cfg.Config) {
	telemetry.InitializeTelemetry(config.Prometheus.Enabled, config.Origin)
	telemetry.InitMetrics()
}
