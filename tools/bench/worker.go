package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/palettekb/palette/cache"
)

const bucketSize = 100

// benchItem is the cached payload. Data is sized by --value-size so runs can
// cross the compression threshold on demand.
type benchItem struct {
	ID   string `json:"id"`
	Seq  int    `json:"seq"`
	Data string `json:"data"`
}

// itemKey builds the two-level key "item:<bucket>:<n>" so invalidation can
// target one bucket with "item:<bucket>:*".
func itemKey(n int) string {
	return fmt.Sprintf("item:%d:%d", n/bucketSize, n%bucketSize)
}

func bucketPattern(n int) string {
	return fmt.Sprintf("item:%d:*", n/bucketSize)
}

// OpType is a bench operation kind.
type OpType int

const (
	OpRead OpType = iota
	OpWrite
	OpDelete
	OpInvalidate
)

func (o OpType) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpDelete:
		return "DELETE"
	case OpInvalidate:
		return "INVALIDATE"
	default:
		return "UNKNOWN"
	}
}

// OpSelector selects operations based on workload distribution.
type OpSelector struct {
	thresholds [4]int
	rng        *rand.Rand
}

// NewOpSelector creates an operation selector.
func NewOpSelector(dist WorkloadDistribution, seed int64) *OpSelector {
	s := &OpSelector{
		rng: rand.New(rand.NewSource(seed)),
	}

	s.thresholds[0] = dist.Read
	s.thresholds[1] = s.thresholds[0] + dist.Write
	s.thresholds[2] = s.thresholds[1] + dist.Delete
	s.thresholds[3] = s.thresholds[2] + dist.Invalidate

	return s
}

// Select returns a random operation type based on distribution.
func (s *OpSelector) Select() OpType {
	r := s.rng.Intn(100)

	if r < s.thresholds[0] {
		return OpRead
	}
	if r < s.thresholds[1] {
		return OpWrite
	}
	if r < s.thresholds[2] {
		return OpDelete
	}
	return OpInvalidate
}

// generateData generates a random payload of the given size.
func generateData(rng *rand.Rand, size int) string {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, size)
	for i := range b {
		b[i] = chars[rng.Intn(len(chars))]
	}
	return string(b)
}

// Worker executes operations against the cache store.
type Worker struct {
	id         int
	store      *cache.Store
	records    int
	valueSize  int
	opSelector *OpSelector
	stats      *Stats
	rng        *rand.Rand
}

// NewWorker creates a new worker.
func NewWorker(id int, store *cache.Store, records, valueSize int, opSelector *OpSelector, stats *Stats) *Worker {
	return &Worker{
		id:         id,
		store:      store,
		records:    records,
		valueSize:  valueSize,
		opSelector: opSelector,
		stats:      stats,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
	}
}

// RunLoad writes the keys in [startKey, endKey) for the load phase.
func (w *Worker) RunLoad(ctx context.Context, startKey, endKey int, wg *sync.WaitGroup) {
	defer wg.Done()

	for i := startKey; i < endKey; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		res := w.store.Put(ctx, itemKey(i), benchItem{
			ID:   itemKey(i),
			Seq:  i,
			Data: generateData(w.rng, w.valueSize),
		})
		latency := time.Since(start)

		if res.OK {
			w.stats.RecordOp(OpWrite, latency)
		} else {
			w.stats.RecordError(OpWrite)
		}
	}
}

// RunBenchmark executes the benchmark workload until opsChan closes.
func (w *Worker) RunBenchmark(ctx context.Context, opsChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-opsChan:
			if !ok {
				return
			}
			w.executeOne(ctx)
		}
	}
}

func (w *Worker) executeOne(ctx context.Context) {
	opType := w.opSelector.Select()
	n := w.rng.Intn(w.records)

	start := time.Now()
	switch opType {
	case OpRead:
		res := w.store.Lookup(ctx, itemKey(n))
		latency := time.Since(start)
		switch {
		case res.Hit():
			w.stats.RecordHit()
			w.stats.RecordOp(OpRead, latency)
		case res.Status == cache.StatusMiss:
			w.stats.RecordMiss()
			w.stats.RecordOp(OpRead, latency)
		default:
			w.stats.RecordError(OpRead)
		}
	case OpWrite:
		res := w.store.Put(ctx, itemKey(n), benchItem{
			ID:   itemKey(n),
			Seq:  n,
			Data: generateData(w.rng, w.valueSize),
		})
		latency := time.Since(start)
		if res.OK {
			w.stats.RecordOp(OpWrite, latency)
		} else {
			w.stats.RecordError(OpWrite)
		}
	case OpDelete:
		res := w.store.Remove(ctx, itemKey(n))
		latency := time.Since(start)
		// A delete that found nothing still counts as a completed op.
		if res.Err == nil {
			w.stats.RecordOp(OpDelete, latency)
		} else {
			w.stats.RecordError(OpDelete)
		}
	case OpInvalidate:
		removed, res := w.store.Invalidate(ctx, bucketPattern(n))
		latency := time.Since(start)
		if res.Err == nil {
			w.stats.RecordInvalidated(removed)
			w.stats.RecordOp(OpInvalidate, latency)
		} else {
			w.stats.RecordError(OpInvalidate)
		}
	}
}
