package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpdateType discriminates notification payloads of the same shape.
type UpdateType string

const (
	UpdateCreated    UpdateType = "created"
	UpdateUpdated    UpdateType = "updated"
	UpdateDeleted    UpdateType = "deleted"
	UpdateDeprecated UpdateType = "deprecated"
	UpdateRebuilt    UpdateType = "rebuilt"
)

// Notification is the closed set of messages the bus routes. Only the types
// in this package implement it; each knows its destination topic and its
// partition key for mirror sinks. Values are immutable once published.
type Notification interface {
	// route returns the destination topic, false when the discriminant
	// holds none of the known values.
	route() (Topic, bool)

	// key returns the partition key handed to mirror sinks.
	key() string
}

// ComponentUpdate announces a lifecycle change of a single component.
type ComponentUpdate struct {
	UpdateType    UpdateType `json:"updateType"`
	ComponentID   string     `json:"componentId"`
	ComponentName string     `json:"componentName"`
	ChangedFields []string   `json:"changedFields,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

func (n ComponentUpdate) route() (Topic, bool) {
	switch n.UpdateType {
	case UpdateCreated:
		return TopicComponentCreated, true
	case UpdateUpdated:
		return TopicComponentUpdated, true
	case UpdateDeleted:
		return TopicComponentDeleted, true
	case UpdateDeprecated:
		return TopicComponentDeprecated, true
	default:
		return "", false
	}
}

func (n ComponentUpdate) key() string {
	return n.ComponentID
}

// ManifestUpdate announces that the component manifest changed as a whole.
type ManifestUpdate struct {
	UpdateType     UpdateType `json:"updateType"`
	Version        string     `json:"version"`
	ComponentCount int        `json:"componentCount"`
	Timestamp      time.Time  `json:"timestamp"`
}

func (n ManifestUpdate) route() (Topic, bool) {
	switch n.UpdateType {
	case UpdateUpdated:
		return TopicManifestUpdated, true
	case UpdateRebuilt:
		return TopicManifestRebuilt, true
	default:
		return "", false
	}
}

func (n ManifestUpdate) key() string {
	return "manifest"
}

// SystemStatus reports a process-level condition (degraded store, restart).
type SystemStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func (n SystemStatus) route() (Topic, bool) {
	return TopicSystemStatus, true
}

func (n SystemStatus) key() string {
	return n.Origin
}

// CacheInvalidation summarizes one coordinated cache drop. Published on the
// reserved CACHE_INVALIDATED topic so replicas can observe invalidation
// traffic; it does not trigger further invalidation by itself.
type CacheInvalidation struct {
	Patterns    []string  `json:"patterns"`
	KeysDropped int       `json:"keysDropped"`
	Reason      string    `json:"reason"`
	Origin      string    `json:"origin"`
	Timestamp   time.Time `json:"timestamp"`
}

func (n CacheInvalidation) route() (Topic, bool) {
	return TopicCacheInvalidated, true
}

func (n CacheInvalidation) key() string {
	return n.Origin
}

// HealthPing is the liveness probe payload on HEALTH_CHECK.
type HealthPing struct {
	Nonce     string    `json:"nonce"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func (n HealthPing) route() (Topic, bool) {
	return TopicHealthCheck, true
}

func (n HealthPing) key() string {
	return n.Nonce
}

// normalize collapses pointer forms to values and reports whether n is
// usable. A nil interface or a typed nil pointer yields false.
func normalize(n Notification) (Notification, bool) {
	switch v := n.(type) {
	case nil:
		return nil, false
	case ComponentUpdate, ManifestUpdate, SystemStatus, CacheInvalidation, HealthPing:
		return v, true
	case *ComponentUpdate:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *ManifestUpdate:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *SystemStatus:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *CacheInvalidation:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *HealthPing:
		if v == nil {
			return nil, false
		}
		return *v, true
	default:
		return nil, false
	}
}

// TopicOf reports the topic a notification routes to. ok is false for nil
// notifications and update types outside the allowed set.
func TopicOf(n Notification) (Topic, bool) {
	v, ok := normalize(n)
	if !ok {
		return "", false
	}
	return v.route()
}

// decodeNotification turns a wire payload back into its typed form. The
// topic picks the concrete type, so a payload on the wrong topic decodes
// into zero fields rather than erroring.
func decodeNotification(topic Topic, payload []byte) (Notification, error) {
	switch topic {
	case TopicComponentCreated, TopicComponentUpdated, TopicComponentDeleted, TopicComponentDeprecated:
		var n ComponentUpdate
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, err
		}
		return n, nil
	case TopicManifestUpdated, TopicManifestRebuilt:
		var n ManifestUpdate
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, err
		}
		return n, nil
	case TopicSystemStatus:
		var n SystemStatus
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, err
		}
		return n, nil
	case TopicCacheInvalidated:
		var n CacheInvalidation
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, err
		}
		return n, nil
	case TopicHealthCheck:
		var n HealthPing
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("bus: unknown topic %q", topic)
	}
}
