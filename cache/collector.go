package cache

import (
	"context"
	"sync"
	"time"

	"github.com/palettekb/palette/telemetry"
)

// DefaultStatsInterval is the collection period used by the service facade.
const DefaultStatsInterval = 15 * time.Second

const statsCollectTimeout = 2 * time.Second

// StatsCollector periodically snapshots store statistics into telemetry
// gauges. Counters are updated inline by the store; the gauges here need a
// poll because key count and memory usage live in the backing store.
type StatsCollector struct {
	store    *Store
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewStatsCollector creates a collector for the given store.
func NewStatsCollector(store *Store, interval time.Duration) *StatsCollector {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	return &StatsCollector{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (sc *StatsCollector) Start() {
	sc.wg.Add(1)
	go sc.collectLoop()
}

// Stop stops the collector
func (sc *StatsCollector) Stop() {
	close(sc.stopCh)
	sc.wg.Wait()
}

func (sc *StatsCollector) collectLoop() {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	sc.collect()

	for {
		select {
		case <-ticker.C:
			sc.collect()
		case <-sc.stopCh:
			return
		}
	}
}

func (sc *StatsCollector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), statsCollectTimeout)
	defer cancel()

	stats := sc.store.Stats(ctx)
	telemetry.CacheKeys.Set(float64(stats.TotalKeys))
	telemetry.CacheMemoryBytes.Set(float64(stats.MemoryUsage))
	telemetry.CacheHitRatio.Set(stats.HitRate)
}
