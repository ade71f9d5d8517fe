package main

import (
	"context"
	"fmt"
	"time"
)

// reportProgress prints real-time progress every second.
func reportProgress(ctx context.Context, stats *Stats) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastSnapshot Snapshot
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := stats.GetSnapshot()
			elapsed := time.Since(startTime)

			currentTotal := snapshot.ReadOps + snapshot.WriteOps + snapshot.DeleteOps + snapshot.InvalidateOps
			lastTotal := lastSnapshot.ReadOps + lastSnapshot.WriteOps + lastSnapshot.DeleteOps + lastSnapshot.InvalidateOps
			opsSec := currentTotal - lastTotal

			cumThroughput := float64(currentTotal) / elapsed.Seconds()

			hitPct := 0.0
			if snapshot.Hits+snapshot.Misses > 0 {
				hitPct = float64(snapshot.Hits) / float64(snapshot.Hits+snapshot.Misses) * 100
			}

			fmt.Printf("[%5.0fs] ops/sec: %6d | total: %8d | hit: %5.1f%% | errors: %4d | throughput: %.1f ops/sec\n",
				elapsed.Seconds(),
				opsSec,
				currentTotal,
				hitPct,
				snapshot.Errors,
				cumThroughput,
			)

			lastSnapshot = snapshot
		}
	}
}
