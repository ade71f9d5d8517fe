package main

import (
	"fmt"
	"time"
)

// Config holds bench options shared by the load and run phases.
type Config struct {
	ConfigPath string
	Backend    string
	Prefix     string

	Records   int
	Threads   int
	ValueSize int

	Workload      string
	Operations    int
	Duration      time.Duration
	ReadPct       int
	WritePct      int
	DeletePct     int
	InvalidatePct int
}

// WorkloadDistribution is the op mix in percent.
type WorkloadDistribution struct {
	Read       int
	Write      int
	Delete     int
	Invalidate int
}

// Validate checks the distribution sums to 100.
func (d WorkloadDistribution) Validate() error {
	total := d.Read + d.Write + d.Delete + d.Invalidate
	if total != 100 {
		return fmt.Errorf("workload distribution must sum to 100, got %d", total)
	}
	return nil
}

// GetWorkloadDistribution resolves the named workload, letting explicit
// percentage flags override individual slots.
func (c *Config) GetWorkloadDistribution() WorkloadDistribution {
	var dist WorkloadDistribution
	switch c.Workload {
	case "read-heavy":
		dist = WorkloadDistribution{Read: 90, Write: 9, Delete: 1, Invalidate: 0}
	case "write-heavy":
		dist = WorkloadDistribution{Read: 30, Write: 65, Delete: 4, Invalidate: 1}
	case "churn":
		dist = WorkloadDistribution{Read: 50, Write: 30, Delete: 15, Invalidate: 5}
	default: // mixed
		dist = WorkloadDistribution{Read: 75, Write: 20, Delete: 4, Invalidate: 1}
	}

	if c.ReadPct >= 0 {
		dist.Read = c.ReadPct
	}
	if c.WritePct >= 0 {
		dist.Write = c.WritePct
	}
	if c.DeletePct >= 0 {
		dist.Delete = c.DeletePct
	}
	if c.InvalidatePct >= 0 {
		dist.Invalidate = c.InvalidatePct
	}
	return dist
}

// Validate checks bench options.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", "memory", "redis", "pebble":
	default:
		return fmt.Errorf("invalid backend: %s", c.Backend)
	}

	if c.Records < 1 {
		return fmt.Errorf("records must be >= 1")
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be >= 1")
	}
	if c.ValueSize < 1 {
		return fmt.Errorf("value-size must be >= 1")
	}
	if c.Operations < 1 && c.Duration <= 0 {
		return fmt.Errorf("either operations or duration must be set")
	}

	switch c.Workload {
	case "mixed", "read-heavy", "write-heavy", "churn":
	default:
		return fmt.Errorf("invalid workload: %s", c.Workload)
	}
	return nil
}
