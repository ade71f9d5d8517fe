package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palettekb/palette/bus"
	"github.com/palettekb/palette/cache"
	"github.com/palettekb/palette/cfg"
	"github.com/palettekb/palette/kvstore"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *cache.Store, *bus.Bus, *kvstore.MemoryStore) {
	t.Helper()

	client := kvstore.NewMemory(0)
	store := cache.NewStore(client, cfg.CacheConfiguration{
		Prefix:            "palette",
		DefaultTTLSeconds: 3600,
	})
	t.Cleanup(func() { _ = store.Close() })

	b, err := bus.New(bus.NewLocalTransport(), cfg.BusConfiguration{Transport: cfg.TransportLocal}, "test-origin")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return New(store, b), store, b, client
}

func recv(t *testing.T, ch <-chan bus.Notification) bus.Notification {
	t.Helper()

	select {
	case n, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func seed(t *testing.T, store *cache.Store, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.True(t, store.Set(context.Background(), key, "v"))
	}
}

func TestComponentChanged_InvalidatesFamilies(t *testing.T) {
	c, store, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	seed(t, store,
		"component:btn-1",
		"component:btn-1:props",
		"component:btn-1:events",
		"components:list:all",
		"search:components:button",
		"graph:deps:btn-1:v2",
		// must survive
		"component:card-2",
		"component:card-2:props",
		"graph:deps:card-2:v1",
	)

	report := c.ComponentChanged(ctx, ComponentChange{
		UpdateType: bus.UpdateUpdated,
		ID:         "btn-1",
		Name:       "Button",
	})

	assert.Equal(t, 6, report.KeysInvalidated)
	assert.Zero(t, report.PatternErrors)
	assert.True(t, report.Published)

	assert.False(t, store.Exists(ctx, "component:btn-1"))
	assert.False(t, store.Exists(ctx, "component:btn-1:props"))
	assert.False(t, store.Exists(ctx, "components:list:all"))
	assert.True(t, store.Exists(ctx, "component:card-2"))
	assert.True(t, store.Exists(ctx, "component:card-2:props"))
	assert.True(t, store.Exists(ctx, "graph:deps:card-2:v1"))
}

func TestComponentChanged_PublishesTypedAndSummary(t *testing.T) {
	c, store, b, _ := newTestCoordinator(t)
	ctx := context.Background()

	seed(t, store, "component:btn-1:props")

	ch, err := b.Subscribe(ctx, []bus.Topic{bus.TopicComponentDeleted, bus.TopicCacheInvalidated})
	require.NoError(t, err)

	report := c.ComponentChanged(ctx, ComponentChange{
		UpdateType:    bus.UpdateDeleted,
		ID:            "btn-1",
		Name:          "Button",
		ChangedFields: []string{"props"},
	})
	require.True(t, report.Published)

	update, ok := recv(t, ch).(bus.ComponentUpdate)
	require.True(t, ok)
	assert.Equal(t, bus.UpdateDeleted, update.UpdateType)
	assert.Equal(t, "btn-1", update.ComponentID)
	assert.Equal(t, "Button", update.ComponentName)

	summary, ok := recv(t, ch).(bus.CacheInvalidation)
	require.True(t, ok)
	assert.Equal(t, 1, summary.KeysDropped)
	assert.Equal(t, "component deleted", summary.Reason)
	assert.Equal(t, "test-origin", summary.Origin)
	assert.Contains(t, summary.Patterns, "component:btn-1:*")
}

func TestManifestChanged_InvalidatesDerivedOnly(t *testing.T) {
	c, store, b, _ := newTestCoordinator(t)
	ctx := context.Background()

	seed(t, store,
		"manifest:current",
		"manifest:v41",
		"components:list:all",
		"search:components:btn",
		// per-component entries survive a rebuild
		"component:btn-1",
		"component:btn-1:props",
	)

	ch, err := b.Subscribe(ctx, []bus.Topic{bus.TopicManifestRebuilt})
	require.NoError(t, err)

	report := c.ManifestChanged(ctx, ManifestChange{
		UpdateType:     bus.UpdateRebuilt,
		Version:        "42",
		ComponentCount: 128,
	})

	assert.Equal(t, 4, report.KeysInvalidated)
	assert.True(t, report.Published)
	assert.True(t, store.Exists(ctx, "component:btn-1"))
	assert.True(t, store.Exists(ctx, "component:btn-1:props"))

	manifest, ok := recv(t, ch).(bus.ManifestUpdate)
	require.True(t, ok)
	assert.Equal(t, "42", manifest.Version)
	assert.Equal(t, 128, manifest.ComponentCount)
}

func TestComponentChanged_DegradedStoreStillPublishes(t *testing.T) {
	c, _, b, client := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, client.Close())

	ch, err := b.Subscribe(ctx, []bus.Topic{bus.TopicComponentUpdated, bus.TopicCacheInvalidated})
	require.NoError(t, err)

	report := c.ComponentChanged(ctx, ComponentChange{
		UpdateType: bus.UpdateUpdated,
		ID:         "btn-1",
		Name:       "Button",
	})

	assert.Zero(t, report.KeysInvalidated)
	assert.Equal(t, len(ComponentPatterns("btn-1")), report.PatternErrors)
	assert.True(t, report.Published, "a dead cache must not block notifications")

	_, ok := recv(t, ch).(bus.ComponentUpdate)
	require.True(t, ok)
	summary, ok := recv(t, ch).(bus.CacheInvalidation)
	require.True(t, ok)
	assert.Zero(t, summary.KeysDropped)
}

func TestComponentChanged_InvalidUpdateTypeNotPublished(t *testing.T) {
	c, store, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	seed(t, store, "component:btn-1:props")

	report := c.ComponentChanged(ctx, ComponentChange{
		UpdateType: "renamed",
		ID:         "btn-1",
	})

	assert.False(t, report.Published)
	assert.Equal(t, 1, report.KeysInvalidated, "invalidation still runs for unroutable changes")
}

func TestComponentPatterns_Shape(t *testing.T) {
	patterns := ComponentPatterns("x-9")

	assert.Equal(t, []string{
		"component:x-9",
		"component:x-9:*",
		"components:list:*",
		"search:components:*",
		"graph:*:x-9*",
	}, patterns)
}

func TestManifestPatterns_Shape(t *testing.T) {
	assert.Equal(t, []string{
		"manifest:*",
		"components:list:*",
		"search:components:*",
	}, ManifestPatterns())
}
