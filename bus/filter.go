package bus

import "slices"

// Filter narrows a subscription to notifications matching every provided
// dimension. Within one dimension the listed values are alternatives; a
// dimension left empty is ignored. The zero Filter matches everything.
type Filter struct {
	ComponentIDs   []string
	ComponentNames []string
	UpdateTypes    []string
}

func (f *Filter) empty() bool {
	return f == nil ||
		(len(f.ComponentIDs) == 0 && len(f.ComponentNames) == 0 && len(f.UpdateTypes) == 0)
}

// Matches evaluates f against n. A nil filter matches everything. Kinds
// that lack a filtered field compare their zero value, so a component
// filter never matches a manifest or system notification.
func Matches(n Notification, f *Filter) bool {
	if f.empty() {
		return true
	}

	n, ok := normalize(n)
	if !ok {
		return false
	}

	var id, name, updateType string
	switch v := n.(type) {
	case ComponentUpdate:
		id, name, updateType = v.ComponentID, v.ComponentName, string(v.UpdateType)
	case ManifestUpdate:
		updateType = string(v.UpdateType)
	case SystemStatus, CacheInvalidation, HealthPing:
		// no filterable fields
	}

	if len(f.ComponentIDs) > 0 && !slices.Contains(f.ComponentIDs, id) {
		return false
	}
	if len(f.ComponentNames) > 0 && !slices.Contains(f.ComponentNames, name) {
		return false
	}
	if len(f.UpdateTypes) > 0 && !slices.Contains(f.UpdateTypes, updateType) {
		return false
	}
	return true
}
