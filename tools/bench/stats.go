package main

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks bench statistics using atomic operations.
type Stats struct {
	// Counters per operation type
	readOps       uint64
	writeOps      uint64
	deleteOps     uint64
	invalidateOps uint64

	// Error counters per operation type
	readErrors       uint64
	writeErrors      uint64
	deleteErrors     uint64
	invalidateErrors uint64

	// Cache behavior counters
	hits            uint64
	misses          uint64
	keysInvalidated uint64

	// Latency tracking (microseconds)
	mu        sync.Mutex
	latencies []int64
}

// NewStats creates a new stats tracker.
func NewStats() *Stats {
	return &Stats{
		latencies: make([]int64, 0, 100000),
	}
}

// RecordOp records a successful operation.
func (s *Stats) RecordOp(opType OpType, latency time.Duration) {
	switch opType {
	case OpRead:
		atomic.AddUint64(&s.readOps, 1)
	case OpWrite:
		atomic.AddUint64(&s.writeOps, 1)
	case OpDelete:
		atomic.AddUint64(&s.deleteOps, 1)
	case OpInvalidate:
		atomic.AddUint64(&s.invalidateOps, 1)
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, latency.Microseconds())
	s.mu.Unlock()
}

// RecordError records a failed operation.
func (s *Stats) RecordError(opType OpType) {
	switch opType {
	case OpRead:
		atomic.AddUint64(&s.readErrors, 1)
	case OpWrite:
		atomic.AddUint64(&s.writeErrors, 1)
	case OpDelete:
		atomic.AddUint64(&s.deleteErrors, 1)
	case OpInvalidate:
		atomic.AddUint64(&s.invalidateErrors, 1)
	}
}

// RecordHit records a read that found a live entry.
func (s *Stats) RecordHit() {
	atomic.AddUint64(&s.hits, 1)
}

// RecordMiss records a read that found nothing.
func (s *Stats) RecordMiss() {
	atomic.AddUint64(&s.misses, 1)
}

// RecordInvalidated adds to the invalidated key total.
func (s *Stats) RecordInvalidated(n int) {
	atomic.AddUint64(&s.keysInvalidated, uint64(n))
}

// TotalOps returns total successful operations.
func (s *Stats) TotalOps() uint64 {
	return atomic.LoadUint64(&s.readOps) +
		atomic.LoadUint64(&s.writeOps) +
		atomic.LoadUint64(&s.deleteOps) +
		atomic.LoadUint64(&s.invalidateOps)
}

// TotalErrors returns total errors.
func (s *Stats) TotalErrors() uint64 {
	return atomic.LoadUint64(&s.readErrors) +
		atomic.LoadUint64(&s.writeErrors) +
		atomic.LoadUint64(&s.deleteErrors) +
		atomic.LoadUint64(&s.invalidateErrors)
}

// GetLatencyPercentiles returns p50, p90, p95, p99 in microseconds.
func (s *Stats) GetLatencyPercentiles() (p50, p90, p95, p99 int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0, 0, 0, 0
	}

	sorted := make([]int64, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	p50 = sorted[n*50/100]
	p90 = sorted[n*90/100]
	p95 = sorted[n*95/100]
	p99 = sorted[n*99/100]

	return p50, p90, p95, p99
}

// GetLatencyStats returns min, max, avg in microseconds.
func (s *Stats) GetLatencyStats() (min, max, avg int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0, 0, 0
	}

	min = s.latencies[0]
	max = s.latencies[0]
	var sum int64

	for _, l := range s.latencies {
		if l < min {
			min = l
		}
		if l > max {
			max = l
		}
		sum += l
	}

	avg = sum / int64(len(s.latencies))
	return min, max, avg
}

// Snapshot is a copy of current counters.
type Snapshot struct {
	ReadOps       uint64
	WriteOps      uint64
	DeleteOps     uint64
	InvalidateOps uint64
	Hits          uint64
	Misses        uint64
	Errors        uint64
}

// GetSnapshot returns current stats snapshot.
func (s *Stats) GetSnapshot() Snapshot {
	return Snapshot{
		ReadOps:       atomic.LoadUint64(&s.readOps),
		WriteOps:      atomic.LoadUint64(&s.writeOps),
		DeleteOps:     atomic.LoadUint64(&s.deleteOps),
		InvalidateOps: atomic.LoadUint64(&s.invalidateOps),
		Hits:          atomic.LoadUint64(&s.hits),
		Misses:        atomic.LoadUint64(&s.misses),
		Errors:        s.TotalErrors(),
	}
}

// PrintFinal prints final statistics.
func (s *Stats) PrintFinal(elapsed time.Duration) {
	totalOps := s.TotalOps()
	totalErrors := s.TotalErrors()
	hits := atomic.LoadUint64(&s.hits)
	misses := atomic.LoadUint64(&s.misses)

	throughput := float64(totalOps) / elapsed.Seconds()

	fmt.Println()
	fmt.Printf("Total time:    %.2fs\n", elapsed.Seconds())
	fmt.Printf("Throughput:    %.2f ops/sec\n", throughput)
	fmt.Println()

	fmt.Println("Operations:")
	fmt.Printf("  READ:       %d\n", atomic.LoadUint64(&s.readOps))
	fmt.Printf("  WRITE:      %d\n", atomic.LoadUint64(&s.writeOps))
	fmt.Printf("  DELETE:     %d\n", atomic.LoadUint64(&s.deleteOps))
	fmt.Printf("  INVALIDATE: %d (%d keys)\n", atomic.LoadUint64(&s.invalidateOps), atomic.LoadUint64(&s.keysInvalidated))
	fmt.Printf("  TOTAL:      %d\n", totalOps)
	fmt.Println()

	if hits+misses > 0 {
		fmt.Printf("Hit rate:      %.1f%% (%d hits, %d misses)\n", float64(hits)/float64(hits+misses)*100, hits, misses)
		fmt.Println()
	}

	if totalErrors > 0 {
		fmt.Println("Errors:")
		if atomic.LoadUint64(&s.readErrors) > 0 {
			fmt.Printf("  READ errors:       %d\n", atomic.LoadUint64(&s.readErrors))
		}
		if atomic.LoadUint64(&s.writeErrors) > 0 {
			fmt.Printf("  WRITE errors:      %d\n", atomic.LoadUint64(&s.writeErrors))
		}
		if atomic.LoadUint64(&s.deleteErrors) > 0 {
			fmt.Printf("  DELETE errors:     %d\n", atomic.LoadUint64(&s.deleteErrors))
		}
		if atomic.LoadUint64(&s.invalidateErrors) > 0 {
			fmt.Printf("  INVALIDATE errors: %d\n", atomic.LoadUint64(&s.invalidateErrors))
		}
		fmt.Printf("  Total errors:      %d\n", totalErrors)
		fmt.Println()
	}

	min, max, avg := s.GetLatencyStats()
	p50, p90, p95, p99 := s.GetLatencyPercentiles()

	fmt.Println("Latency (microseconds):")
	fmt.Printf("  Min:   %d\n", min)
	fmt.Printf("  Avg:   %d\n", avg)
	fmt.Printf("  Max:   %d\n", max)
	fmt.Printf("  P50:   %d\n", p50)
	fmt.Printf("  P90:   %d\n", p90)
	fmt.Printf("  P95:   %d\n", p95)
	fmt.Printf("  P99:   %d\n", p99)
}
