// Package coordinator keeps the cache and the notification bus loosely
// consistent after knowledge-base writes: first drop the derived cache
// entries, then announce the change. There is no shared transaction; each
// step is best-effort and a partial failure leaves the system eventually
// consistent rather than blocked.
package coordinator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palettekb/palette/bus"
	"github.com/palettekb/palette/cache"
)

// ComponentChange describes one component mutation to coordinate.
type ComponentChange struct {
	UpdateType    bus.UpdateType
	ID            string
	Name          string
	ChangedFields []string
}

// ManifestChange describes a manifest-wide mutation to coordinate.
type ManifestChange struct {
	UpdateType     bus.UpdateType
	Version        string
	ComponentCount int
}

// Report tells the caller what actually happened. Callers may ignore it;
// nothing here requires a retry.
type Report struct {
	KeysInvalidated int
	PatternErrors   int
	Published       bool
}

// Coordinator sequences invalidation and notification for one store/bus
// pair.
type Coordinator struct {
	store *cache.Store
	bus   *bus.Bus
}

func New(store *cache.Store, b *bus.Bus) *Coordinator {
	return &Coordinator{store: store, bus: b}
}

// ComponentChanged invalidates every key family derived from the component,
// publishes the typed notification, then publishes an invalidation summary
// on the reserved topic. Steps never block each other.
func (c *Coordinator) ComponentChanged(ctx context.Context, change ComponentChange) Report {
	patterns := ComponentPatterns(change.ID)
	report := c.invalidate(ctx, patterns)

	err := c.bus.TryPublish(ctx, bus.ComponentUpdate{
		UpdateType:    change.UpdateType,
		ComponentID:   change.ID,
		ComponentName: change.Name,
		ChangedFields: change.ChangedFields,
		Timestamp:     time.Now().UTC(),
	})
	report.Published = err == nil

	c.bus.PublishCacheInvalidation(ctx, patterns, report.KeysInvalidated, "component "+string(change.UpdateType))

	log.Debug().
		Str("component", change.ID).
		Str("update_type", string(change.UpdateType)).
		Int("keys", report.KeysInvalidated).
		Int("pattern_errors", report.PatternErrors).
		Msg("Coordinated component change")

	return report
}

// ManifestChanged is ComponentChanged for manifest-wide events.
func (c *Coordinator) ManifestChanged(ctx context.Context, change ManifestChange) Report {
	patterns := ManifestPatterns()
	report := c.invalidate(ctx, patterns)

	err := c.bus.TryPublish(ctx, bus.ManifestUpdate{
		UpdateType:     change.UpdateType,
		Version:        change.Version,
		ComponentCount: change.ComponentCount,
		Timestamp:      time.Now().UTC(),
	})
	report.Published = err == nil

	c.bus.PublishCacheInvalidation(ctx, patterns, report.KeysInvalidated, "manifest "+string(change.UpdateType))

	log.Debug().
		Str("version", change.Version).
		Str("update_type", string(change.UpdateType)).
		Int("keys", report.KeysInvalidated).
		Int("pattern_errors", report.PatternErrors).
		Msg("Coordinated manifest change")

	return report
}

// invalidate drops each pattern independently; one failing family never
// stops the rest.
func (c *Coordinator) invalidate(ctx context.Context, patterns []string) Report {
	var report Report
	for _, pattern := range patterns {
		removed, res := c.store.Invalidate(ctx, pattern)
		report.KeysInvalidated += removed
		if res.Err != nil {
			report.PatternErrors++
		}
	}
	return report
}
