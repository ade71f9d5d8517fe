package bus

// Topic names a notification channel. The strings are the wire contract:
// they appear verbatim as NATS subjects and in mirror sink topics, so
// renaming one is a breaking change for every consumer.
type Topic string

const (
	TopicComponentCreated    Topic = "COMPONENT_CREATED"
	TopicComponentUpdated    Topic = "COMPONENT_UPDATED"
	TopicComponentDeleted    Topic = "COMPONENT_DELETED"
	TopicComponentDeprecated Topic = "COMPONENT_DEPRECATED"
	TopicManifestUpdated     Topic = "MANIFEST_UPDATED"
	TopicManifestRebuilt     Topic = "MANIFEST_REBUILT"
	TopicSystemStatus        Topic = "SYSTEM_STATUS"

	// TopicCacheInvalidated carries invalidation summaries emitted after
	// coordinated cache drops. Not part of the kind-to-topic routing table.
	TopicCacheInvalidated Topic = "CACHE_INVALIDATED"

	// TopicHealthCheck carries liveness pings with a unique nonce.
	TopicHealthCheck Topic = "HEALTH_CHECK"
)

// AllTopics returns every topic in a fixed order.
func AllTopics() []Topic {
	return []Topic{
		TopicComponentCreated,
		TopicComponentUpdated,
		TopicComponentDeleted,
		TopicComponentDeprecated,
		TopicManifestUpdated,
		TopicManifestRebuilt,
		TopicSystemStatus,
		TopicCacheInvalidated,
		TopicHealthCheck,
	}
}

// ValidTopic reports whether s names a known topic.
func ValidTopic(s string) bool {
	for _, t := range AllTopics() {
		if string(t) == s {
			return true
		}
	}
	return false
}
