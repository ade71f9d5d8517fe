package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouting_ComponentUpdates(t *testing.T) {
	cases := map[UpdateType]Topic{
		UpdateCreated:    TopicComponentCreated,
		UpdateUpdated:    TopicComponentUpdated,
		UpdateDeleted:    TopicComponentDeleted,
		UpdateDeprecated: TopicComponentDeprecated,
	}

	for updateType, want := range cases {
		topic, ok := ComponentUpdate{UpdateType: updateType}.route()
		require.True(t, ok, "update type %q must route", updateType)
		assert.Equal(t, want, topic)
	}

	_, ok := ComponentUpdate{UpdateType: "renamed"}.route()
	assert.False(t, ok, "unknown discriminants must not route")

	_, ok = ComponentUpdate{UpdateType: UpdateRebuilt}.route()
	assert.False(t, ok, "rebuilt belongs to manifests, not components")
}

func TestRouting_ManifestUpdates(t *testing.T) {
	topic, ok := ManifestUpdate{UpdateType: UpdateUpdated}.route()
	require.True(t, ok)
	assert.Equal(t, TopicManifestUpdated, topic)

	topic, ok = ManifestUpdate{UpdateType: UpdateRebuilt}.route()
	require.True(t, ok)
	assert.Equal(t, TopicManifestRebuilt, topic)

	_, ok = ManifestUpdate{UpdateType: UpdateDeleted}.route()
	assert.False(t, ok)
}

func TestRouting_FixedTopics(t *testing.T) {
	topic, ok := SystemStatus{Status: "healthy"}.route()
	require.True(t, ok)
	assert.Equal(t, TopicSystemStatus, topic)

	topic, ok = CacheInvalidation{}.route()
	require.True(t, ok)
	assert.Equal(t, TopicCacheInvalidated, topic)

	topic, ok = HealthPing{}.route()
	require.True(t, ok)
	assert.Equal(t, TopicHealthCheck, topic)
}

func TestNotification_WireShape(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	n := ComponentUpdate{
		UpdateType:    UpdateUpdated,
		ComponentID:   "btn-1",
		ComponentName: "Button",
		ChangedFields: []string{"props", "events"},
		Timestamp:     ts,
	}

	payload, err := json.Marshal(n)
	require.NoError(t, err)

	// Flat object, camelCase fields, RFC 3339 timestamp
	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &wire))
	assert.Equal(t, "updated", wire["updateType"])
	assert.Equal(t, "btn-1", wire["componentId"])
	assert.Equal(t, "Button", wire["componentName"])
	assert.Equal(t, "2025-06-01T12:30:00Z", wire["timestamp"])

	_, err = time.Parse(time.RFC3339, wire["timestamp"].(string))
	assert.NoError(t, err)
}

func TestNotification_ChangedFieldsOmittedWhenEmpty(t *testing.T) {
	payload, err := json.Marshal(ComponentUpdate{UpdateType: UpdateCreated, ComponentID: "1"})
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "changedFields")
}

func TestDecodeNotification_RoundTrip(t *testing.T) {
	in := ManifestUpdate{
		UpdateType:     UpdateRebuilt,
		Version:        "42",
		ComponentCount: 128,
		Timestamp:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := decodeNotification(TopicManifestRebuilt, payload)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeNotification_PicksTypeByTopic(t *testing.T) {
	payload := []byte(`{"status":"degraded","message":"store unreachable","origin":"node-a"}`)

	out, err := decodeNotification(TopicSystemStatus, payload)
	require.NoError(t, err)

	status, ok := out.(SystemStatus)
	require.True(t, ok)
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "node-a", status.Origin)
}

func TestDecodeNotification_Errors(t *testing.T) {
	_, err := decodeNotification(TopicComponentCreated, []byte("{not json"))
	assert.Error(t, err)

	_, err = decodeNotification(Topic("BOGUS"), []byte("{}"))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	_, ok := normalize(nil)
	assert.False(t, ok)

	var typed *ManifestUpdate
	_, ok = normalize(typed)
	assert.False(t, ok, "typed nil pointers are unusable")

	v, ok := normalize(&ComponentUpdate{ComponentID: "1"})
	require.True(t, ok)
	assert.Equal(t, ComponentUpdate{ComponentID: "1"}, v)
}

func TestValidTopic(t *testing.T) {
	for _, topic := range AllTopics() {
		assert.True(t, ValidTopic(string(topic)))
	}
	assert.False(t, ValidTopic("component_created"))
	assert.False(t, ValidTopic(""))
}

func TestTopicOf(t *testing.T) {
	topic, ok := TopicOf(ComponentUpdate{UpdateType: UpdateDeleted, ComponentID: "1"})
	require.True(t, ok)
	assert.Equal(t, TopicComponentDeleted, topic)

	topic, ok = TopicOf(&SystemStatus{Status: "healthy"})
	require.True(t, ok)
	assert.Equal(t, TopicSystemStatus, topic)

	_, ok = TopicOf(nil)
	assert.False(t, ok)

	_, ok = TopicOf(ComponentUpdate{UpdateType: "renamed"})
	assert.False(t, ok)
}
