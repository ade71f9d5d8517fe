package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// CacheOpBuckets for single round-trips to the backing store
	CacheOpBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

	// PublishBuckets for notification publish latency
	PublishBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
)

// Cache Metrics
var (
	// CacheOpsTotal counts cache operations by op (get, set, del, ...) and result (ok, error, degraded)
	CacheOpsTotal CounterVec = noopCounterVec{}

	// CacheHitsTotal counts reads that found a live entry
	CacheHitsTotal Counter = NoopStat{}

	// CacheMissesTotal counts reads that found nothing
	CacheMissesTotal Counter = NoopStat{}

	// CacheInvalidatedKeysTotal counts keys removed by pattern invalidation
	CacheInvalidatedKeysTotal Counter = NoopStat{}

	// CacheDegradedTotal counts operations answered neutrally while the store was unreachable
	CacheDegradedTotal Counter = NoopStat{}

	// CacheOpSeconds measures cache operation latency by op
	CacheOpSeconds HistogramVec = noopHistogramVec{}

	// CacheKeys tracks the point-in-time key count in the backing store
	CacheKeys Gauge = NoopStat{}

	// CacheMemoryBytes tracks the estimated memory held by cached values
	CacheMemoryBytes Gauge = NoopStat{}

	// CacheHitRatio tracks hits/(hits+misses) since process start
	CacheHitRatio Gauge = NoopStat{}
)

// Bus Metrics
var (
	// BusPublishedTotal counts notifications published by topic
	BusPublishedTotal CounterVec = noopCounterVec{}

	// BusPublishFailuresTotal counts failed publish attempts by topic
	BusPublishFailuresTotal CounterVec = noopCounterVec{}

	// BusDeliveredTotal counts notifications handed to subscriber channels by topic
	BusDeliveredTotal CounterVec = noopCounterVec{}

	// BusDroppedTotal counts notifications dropped on full subscriber buffers by topic
	BusDroppedTotal CounterVec = noopCounterVec{}

	// BusSubscriptions tracks currently open subscriptions
	BusSubscriptions Gauge = NoopStat{}

	// BusPublishSeconds measures publish latency including transport hand-off
	BusPublishSeconds Histogram = NoopStat{}

	// RegistrySubscribers tracks advisory registry membership per topic
	RegistrySubscribers GaugeVec = noopGaugeVec{}

	// SinkFailuresTotal counts mirror sink write failures by sink name
	SinkFailuresTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Cache Metrics
	CacheOpsTotal = NewCounterVec(
		"cache_ops_total",
		"Total cache operations by op and result",
		[]string{"op", "result"},
	)
	CacheHitsTotal = NewCounter(
		"cache_hits_total",
		"Total cache reads that found a live entry",
	)
	CacheMissesTotal = NewCounter(
		"cache_misses_total",
		"Total cache reads that found nothing",
	)
	CacheInvalidatedKeysTotal = NewCounter(
		"cache_invalidated_keys_total",
		"Total keys removed by pattern invalidation",
	)
	CacheDegradedTotal = NewCounter(
		"cache_degraded_total",
		"Total operations answered neutrally while the store was unreachable",
	)
	CacheOpSeconds = NewHistogramVec(
		"cache_op_seconds",
		"Cache operation duration in seconds",
		[]string{"op"},
		CacheOpBuckets,
	)
	CacheKeys = NewGauge(
		"cache_keys",
		"Point-in-time key count in the backing store",
	)
	CacheMemoryBytes = NewGauge(
		"cache_memory_bytes",
		"Estimated memory held by cached values",
	)
	CacheHitRatio = NewGauge(
		"cache_hit_ratio",
		"Cache hits over total reads since process start",
	)

	// Bus Metrics
	BusPublishedTotal = NewCounterVec(
		"bus_published_total",
		"Total notifications published by topic",
		[]string{"topic"},
	)
	BusPublishFailuresTotal = NewCounterVec(
		"bus_publish_failures_total",
		"Total failed publish attempts by topic",
		[]string{"topic"},
	)
	BusDeliveredTotal = NewCounterVec(
		"bus_delivered_total",
		"Total notifications handed to subscriber channels by topic",
		[]string{"topic"},
	)
	BusDroppedTotal = NewCounterVec(
		"bus_dropped_total",
		"Total notifications dropped on full subscriber buffers by topic",
		[]string{"topic"},
	)
	BusSubscriptions = NewGauge(
		"bus_subscriptions",
		"Number of currently open subscriptions",
	)
	BusPublishSeconds = NewHistogramWithBuckets(
		"bus_publish_seconds",
		"Publish duration in seconds including transport hand-off",
		PublishBuckets,
	)
	RegistrySubscribers = NewGaugeVec(
		"registry_subscribers",
		"Advisory registry membership per topic",
		[]string{"topic"},
	)
	SinkFailuresTotal = NewCounterVec(
		"sink_mirror_failures_total",
		"Total mirror sink write failures by sink name",
		[]string{"sink"},
	)
}
