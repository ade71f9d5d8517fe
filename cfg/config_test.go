package cfg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	config := Default()

	err := config.Validate()
	if err != nil {
		t.Errorf("Expected no error for default config, got: %v", err)
	}
}

func TestValidate_InvalidBackend(t *testing.T) {
	config := Default()
	config.Cache.Backend = "etcd"

	err := config.Validate()
	if err == nil {
		t.Error("Expected error for unknown cache backend")
	}
}

func TestValidate_RedisBackendRequiresURL(t *testing.T) {
	config := Default()
	config.Cache.Backend = BackendRedis
	config.Cache.RedisURL = ""

	err := config.Validate()
	if err == nil {
		t.Error("Expected error for redis backend without URL")
	}
}

func TestValidate_InvalidTransport(t *testing.T) {
	config := Default()
	config.Bus.Transport = "amqp"

	err := config.Validate()
	if err == nil {
		t.Error("Expected error for unknown bus transport")
	}
}

func TestValidate_NATSTransportRequiresURL(t *testing.T) {
	config := Default()
	config.Bus.Transport = TransportNATS
	config.Bus.NATSURL = ""

	err := config.Validate()
	if err == nil {
		t.Error("Expected error for nats transport without URL")
	}
}

func TestValidate_InvalidBufferSize(t *testing.T) {
	config := Default()

	tests := []int{0, -1, -16}

	for _, size := range tests {
		config.Bus.BufferSize = size

		err := config.Validate()
		if err == nil {
			t.Errorf("Expected error for buffer size %d", size)
		}
	}
}

func TestValidate_InvalidJanitorInterval(t *testing.T) {
	config := Default()
	config.Cache.JanitorIntervalSec = 0

	err := config.Validate()
	if err == nil {
		t.Error("Expected error for zero janitor interval")
	}
}

func TestValidate_SinkMissingFields(t *testing.T) {
	config := Default()
	config.Bus.Sinks = []SinkConfiguration{
		{Name: "audit", Type: "kafka"},
	}

	err := config.Validate()
	if err == nil {
		t.Error("Expected error for sink without addresses")
	}

	config.Bus.Sinks = []SinkConfiguration{
		{Name: "audit", Addresses: []string{"localhost:9092"}},
	}

	err = config.Validate()
	if err == nil {
		t.Error("Expected error for sink without type")
	}
}

func TestValidate_InvalidLoggingFormat(t *testing.T) {
	config := Default()
	config.Logging.Format = "xml"

	err := config.Validate()
	if err == nil {
		t.Error("Expected error for unknown logging format")
	}
}

func TestValidate_InvalidAdminPort(t *testing.T) {
	config := Default()
	config.Admin.Enabled = true

	tests := []int{-1, 0, 70000}

	for _, port := range tests {
		config.Admin.Port = port

		err := config.Validate()
		if err == nil {
			t.Errorf("Expected error for invalid admin port %d", port)
		}
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
origin = "test-origin"

[cache]
backend = "memory"
prefix = "kb"
default_ttl_seconds = 120

[bus]
transport = "local"
buffer_size = 32

[[bus.sink]]
name = "audit"
type = "kafka"
addresses = ["localhost:9092"]
topic = "palette.events"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Cache.Backend != BackendMemory {
		t.Errorf("Expected memory backend, got %s", config.Cache.Backend)
	}
	if config.Cache.Prefix != "kb" {
		t.Errorf("Expected prefix kb, got %s", config.Cache.Prefix)
	}
	if config.Cache.DefaultTTLSeconds != 120 {
		t.Errorf("Expected TTL 120, got %d", config.Cache.DefaultTTLSeconds)
	}
	if config.Bus.Transport != TransportLocal {
		t.Errorf("Expected local transport, got %s", config.Bus.Transport)
	}
	if config.Bus.BufferSize != 32 {
		t.Errorf("Expected buffer size 32, got %d", config.Bus.BufferSize)
	}
	if len(config.Bus.Sinks) != 1 || config.Bus.Sinks[0].Name != "audit" {
		t.Errorf("Expected one sink named audit, got %+v", config.Bus.Sinks)
	}

	// Unset fields keep defaults
	if config.Cache.JanitorIntervalSec != 60 {
		t.Errorf("Expected default janitor interval, got %d", config.Cache.JanitorIntervalSec)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	config, err := Load(filepath.Join(dir, "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Cache.Backend != BackendRedis {
		t.Errorf("Expected default redis backend, got %s", config.Cache.Backend)
	}
	if config.Origin == "" {
		t.Error("Expected auto-generated origin ID")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
origin = "test-origin"

[cache]
backend = "memory"
redis_url = "redis://file:6379/0"
prefix = "file-prefix"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv(EnvRedisURL, "redis://env:6379/1")
	t.Setenv(EnvCachePrefix, "env-prefix")
	t.Setenv(EnvAdminToken, "sekrit")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Cache.RedisURL != "redis://env:6379/1" {
		t.Errorf("Expected env redis URL to win, got %s", config.Cache.RedisURL)
	}
	if config.Cache.Prefix != "env-prefix" {
		t.Errorf("Expected env prefix to win, got %s", config.Cache.Prefix)
	}
	if config.Admin.BearerToken != "sekrit" {
		t.Errorf("Expected env admin token, got %s", config.Admin.BearerToken)
	}
}
