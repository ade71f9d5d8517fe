package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches_NilFilterMatchesEverything(t *testing.T) {
	notifs := []Notification{
		ComponentUpdate{UpdateType: UpdateUpdated, ComponentID: "1", ComponentName: "Button"},
		ManifestUpdate{UpdateType: UpdateRebuilt, Version: "2"},
		SystemStatus{Status: "healthy"},
		CacheInvalidation{Reason: "component updated"},
		HealthPing{Nonce: "n"},
	}

	for _, n := range notifs {
		assert.True(t, Matches(n, nil), "%T should pass a nil filter", n)
	}
}

func TestMatches_EmptyFilterMatchesEverything(t *testing.T) {
	n := ComponentUpdate{UpdateType: UpdateCreated, ComponentID: "1"}
	assert.True(t, Matches(n, &Filter{}))
}

func TestMatches_ComponentNames(t *testing.T) {
	n := ComponentUpdate{UpdateType: UpdateUpdated, ComponentName: "Button"}

	assert.True(t, Matches(n, &Filter{ComponentNames: []string{"Button", "Input"}}))
	assert.False(t, Matches(n, &Filter{ComponentNames: []string{"Modal"}}))
	assert.False(t, Matches(n, &Filter{UpdateTypes: []string{"deleted"}}))
}

func TestMatches_AndAcrossDimensions(t *testing.T) {
	n := ComponentUpdate{UpdateType: UpdateCreated, ComponentID: "1", ComponentName: "Button"}

	assert.True(t, Matches(n, &Filter{
		ComponentIDs: []string{"1"},
		UpdateTypes:  []string{"created"},
	}))
	assert.False(t, Matches(n, &Filter{
		ComponentIDs: []string{"1"},
		UpdateTypes:  []string{"updated"},
	}), "every provided dimension must match")
}

func TestMatches_OrWithinDimension(t *testing.T) {
	n := ComponentUpdate{UpdateType: UpdateDeleted, ComponentID: "7"}

	assert.True(t, Matches(n, &Filter{UpdateTypes: []string{"created", "deleted"}}))
}

func TestMatches_MissingFieldFailsDimension(t *testing.T) {
	manifest := ManifestUpdate{UpdateType: UpdateUpdated, Version: "3"}

	// Manifest notifications have no component name; a name filter can
	// never match them.
	assert.False(t, Matches(manifest, &Filter{ComponentNames: []string{"Button"}}))
	assert.True(t, Matches(manifest, &Filter{UpdateTypes: []string{"updated"}}))

	status := SystemStatus{Status: "degraded"}
	assert.False(t, Matches(status, &Filter{UpdateTypes: []string{"updated"}}))
	assert.True(t, Matches(status, nil))
}

func TestMatches_PointerNotification(t *testing.T) {
	n := &ComponentUpdate{UpdateType: UpdateUpdated, ComponentName: "Button"}

	assert.True(t, Matches(n, &Filter{ComponentNames: []string{"Button"}}))
}

func TestMatches_NilNotification(t *testing.T) {
	assert.True(t, Matches(nil, nil))
	assert.False(t, Matches(nil, &Filter{ComponentIDs: []string{"1"}}))

	var typed *ComponentUpdate
	assert.False(t, Matches(typed, &Filter{ComponentIDs: []string{"1"}}))
}
