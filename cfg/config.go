package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// CacheBackend selects the key-value store behind the cache layer
type CacheBackend string

const (
	BackendRedis  CacheBackend = "redis"  // Shared Redis instance
	BackendMemory CacheBackend = "memory" // In-process map, single node only
	BackendPebble CacheBackend = "pebble" // Embedded on-disk store
)

// BusTransport selects how notifications move between processes
type BusTransport string

const (
	TransportNATS  BusTransport = "nats"  // NATS subjects, one per topic
	TransportLocal BusTransport = "local" // In-process fan-out, single node only
)

// CacheConfiguration controls the cache layer and its backing store
type CacheConfiguration struct {
	Backend            CacheBackend `toml:"backend"`
	RedisURL           string       `toml:"redis_url"`
	Prefix             string       `toml:"prefix"`
	DefaultTTLSeconds  int          `toml:"default_ttl_seconds"`
	CompressThreshold  int          `toml:"compress_threshold_bytes"` // 0 disables compression
	JanitorIntervalSec int          `toml:"janitor_interval_seconds"` // Expiry sweep for memory/pebble backends
	BreakerEnabled     bool         `toml:"breaker_enabled"`
}

// SinkConfiguration describes one mirror sink for published notifications
type SinkConfiguration struct {
	Name      string   `toml:"name"`
	Type      string   `toml:"type"`
	Addresses []string `toml:"addresses"`
	Topic     string   `toml:"topic"`
}

// BusConfiguration controls the notification bus
type BusConfiguration struct {
	Transport  BusTransport        `toml:"transport"`
	NATSURL    string              `toml:"nats_url"`
	BufferSize int                 `toml:"buffer_size"` // Per-subscriber channel buffer
	Sinks      []SinkConfiguration `toml:"sink"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// AdminConfiguration for the operational HTTP API
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	BearerToken string `toml:"bearer_token"`
}

// Config is the main configuration structure
type Config struct {
	DataDir string `toml:"data_dir"`
	Origin  string `toml:"origin"` // Stable process identity, auto-generated when empty

	Cache      CacheConfiguration      `toml:"cache"`
	Bus        BusConfiguration        `toml:"bus"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag  = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag     = flag.String("data-dir", "", "Data directory (overrides config)")
	RedisURLFlag    = flag.String("redis-url", "", "Redis connection URL (overrides config)")
	NATSURLFlag     = flag.String("nats-url", "", "NATS connection URL (overrides config)")
	CachePrefixFlag = flag.String("cache-prefix", "", "Cache key prefix (overrides config)")
)

// Environment variable overrides, applied between file and CLI flags
const (
	EnvRedisURL    = "PALETTE_REDIS_URL"
	EnvNATSURL     = "PALETTE_NATS_URL"
	EnvCachePrefix = "PALETTE_CACHE_PREFIX"
	EnvAdminToken  = "PALETTE_ADMIN_TOKEN"
)

// Default returns the baseline configuration before file and flag overrides
func Default() *Config {
	return &Config{
		DataDir: "./palette-data",
		Origin:  "", // Auto-generate

		Cache: CacheConfiguration{
			Backend:            BackendRedis,
			RedisURL:           "redis://localhost:6379/0",
			Prefix:             "palette",
			DefaultTTLSeconds:  3600, // 1 hour
			CompressThreshold:  4096,
			JanitorIntervalSec: 60,
			BreakerEnabled:     true,
		},

		Bus: BusConfiguration{
			Transport:  TransportNATS,
			NATSURL:    "nats://localhost:4222",
			BufferSize: 16,
			Sinks:      []SinkConfiguration{},
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},

		Admin: AdminConfiguration{
			Enabled:     false,
			BindAddress: "0.0.0.0",
			Port:        8980,
			BearerToken: "",
		},
	}
}

// Load reads configuration from file and applies environment and CLI overrides
func Load(configPath string) (*Config, error) {
	config := Default()

	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, config); err != nil {
				return nil, fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply environment overrides
	if v := os.Getenv(EnvRedisURL); v != "" {
		config.Cache.RedisURL = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		config.Bus.NATSURL = v
	}
	if v := os.Getenv(EnvCachePrefix); v != "" {
		config.Cache.Prefix = v
	}
	if v := os.Getenv(EnvAdminToken); v != "" {
		config.Admin.BearerToken = v
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		config.DataDir = *DataDirFlag
	}
	if *RedisURLFlag != "" {
		config.Cache.RedisURL = *RedisURLFlag
	}
	if *NATSURLFlag != "" {
		config.Bus.NATSURL = *NATSURLFlag
	}
	if *CachePrefixFlag != "" {
		config.Cache.Prefix = *CachePrefixFlag
	}

	// Auto-generate origin ID if not set
	if config.Origin == "" {
		origin, err := generateOriginID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate origin ID: %w", err)
		}
		config.Origin = origin
		log.Info().Str("origin", config.Origin).Msg("Auto-generated origin ID")
	}

	// The pebble backend keeps its store under the data directory
	if config.Cache.Backend == BackendPebble {
		if err := os.MkdirAll(config.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return config, nil
}

// generateOriginID creates a stable process identity based on machine ID,
// falling back to hostname where no machine ID is available
func generateOriginID() (string, error) {
	id, err := machineid.ProtectedID("palette")
	if err != nil {
		log.Warn().Err(err).Msg("Machine ID unavailable, deriving origin from hostname")
		id, err = os.Hostname()
		if err != nil {
			return "", err
		}
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// PebblePath returns the path to the embedded store directory
func (c *Config) PebblePath() string {
	return path.Join(c.DataDir, "cache.pebble")
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendRedis, BackendMemory, BackendPebble:
	default:
		return fmt.Errorf("invalid cache backend: %s", c.Cache.Backend)
	}

	if c.Cache.Backend == BackendRedis && c.Cache.RedisURL == "" {
		return fmt.Errorf("redis backend requires a connection URL")
	}

	if c.Cache.DefaultTTLSeconds < 0 {
		return fmt.Errorf("cache default TTL must be >= 0 seconds")
	}

	if c.Cache.CompressThreshold < 0 {
		return fmt.Errorf("cache compress threshold must be >= 0 bytes")
	}

	if c.Cache.JanitorIntervalSec < 1 {
		return fmt.Errorf("cache janitor interval must be >= 1 second")
	}

	switch c.Bus.Transport {
	case TransportNATS, TransportLocal:
	default:
		return fmt.Errorf("invalid bus transport: %s", c.Bus.Transport)
	}

	if c.Bus.Transport == TransportNATS && c.Bus.NATSURL == "" {
		return fmt.Errorf("nats transport requires a connection URL")
	}

	if c.Bus.BufferSize < 1 {
		return fmt.Errorf("bus buffer size must be >= 1")
	}

	for _, sink := range c.Bus.Sinks {
		if sink.Name == "" {
			return fmt.Errorf("sink requires a name")
		}
		if sink.Type == "" {
			return fmt.Errorf("sink %s requires a type", sink.Name)
		}
		if len(sink.Addresses) == 0 {
			return fmt.Errorf("sink %s requires at least one address", sink.Name)
		}
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if c.Admin.Enabled && (c.Admin.Port < 1 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}

	return nil
}
