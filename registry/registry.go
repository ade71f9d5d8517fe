// Package registry tracks which consumers claim to listen on which topics.
// The registry is advisory bookkeeping for operators: nothing checks it
// before delivering, and Subscribe never consults it. Callers register and
// deregister by convention.
package registry

import (
	"slices"
	"sync"

	"github.com/palettekb/palette/bus"
	"github.com/palettekb/palette/telemetry"
)

// Registry is a topic to subscriber-id mapping. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	topics map[bus.Topic]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		topics: make(map[bus.Topic]map[string]struct{}),
	}
}

// Add records id as a subscriber of topic. Adding an existing member is a
// no-op.
func (r *Registry) Add(topic bus.Topic, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.topics[topic]
	if !ok {
		members = make(map[string]struct{})
		r.topics[topic] = members
	}
	members[id] = struct{}{}

	telemetry.RegistrySubscribers.With(string(topic)).Set(float64(len(members)))
}

// Remove drops id from topic. Removing the last member removes the topic
// entry entirely; removing an unknown member is a no-op.
func (r *Registry) Remove(topic bus.Topic, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.topics[topic]
	if !ok {
		return
	}

	delete(members, id)
	if len(members) == 0 {
		delete(r.topics, topic)
	}

	telemetry.RegistrySubscribers.With(string(topic)).Set(float64(len(members)))
}

// Count returns the number of registered subscribers for topic.
func (r *Registry) Count(topic bus.Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// All returns a copy of the whole registry with subscriber ids sorted.
func (r *Registry) All() map[bus.Topic][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[bus.Topic][]string, len(r.topics))
	for topic, members := range r.topics {
		ids := make([]string, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		out[topic] = ids
	}
	return out
}

// Topics returns the topics with at least one registered subscriber, sorted.
func (r *Registry) Topics() []bus.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]bus.Topic, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}
