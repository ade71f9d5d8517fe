package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/palettekb/palette/bus"
)

func TestRegistry_AddAndCount(t *testing.T) {
	r := New()

	r.Add(bus.TopicComponentUpdated, "a")
	r.Add(bus.TopicComponentUpdated, "b")

	if got := r.Count(bus.TopicComponentUpdated); got != 2 {
		t.Errorf("expected count 2, got %d", got)
	}
	if got := r.Count(bus.TopicManifestUpdated); got != 0 {
		t.Errorf("expected count 0 for unused topic, got %d", got)
	}
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r := New()

	r.Add(bus.TopicSystemStatus, "a")
	r.Add(bus.TopicSystemStatus, "a")

	if got := r.Count(bus.TopicSystemStatus); got != 1 {
		t.Errorf("expected count 1 after duplicate add, got %d", got)
	}
}

func TestRegistry_RemoveLastMemberDropsTopic(t *testing.T) {
	r := New()

	r.Add(bus.TopicComponentCreated, "a")
	r.Add(bus.TopicComponentCreated, "b")

	r.Remove(bus.TopicComponentCreated, "a")
	r.Remove(bus.TopicComponentCreated, "b")

	if got := r.Count(bus.TopicComponentCreated); got != 0 {
		t.Errorf("expected count 0, got %d", got)
	}
	if topics := r.Topics(); len(topics) != 0 {
		t.Errorf("expected topic entry gone, got %v", topics)
	}
	if all := r.All(); len(all) != 0 {
		t.Errorf("expected empty registry, got %v", all)
	}
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := New()

	r.Remove(bus.TopicComponentCreated, "ghost")

	r.Add(bus.TopicComponentCreated, "a")
	r.Remove(bus.TopicComponentCreated, "ghost")

	if got := r.Count(bus.TopicComponentCreated); got != 1 {
		t.Errorf("expected count 1, got %d", got)
	}
}

func TestRegistry_AllReturnsSortedCopies(t *testing.T) {
	r := New()

	r.Add(bus.TopicComponentUpdated, "zeta")
	r.Add(bus.TopicComponentUpdated, "alpha")
	r.Add(bus.TopicManifestRebuilt, "mid")

	all := r.All()
	ids := all[bus.TopicComponentUpdated]
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "zeta" {
		t.Errorf("expected sorted [alpha zeta], got %v", ids)
	}

	// Mutating the copy must not touch the registry
	all[bus.TopicComponentUpdated] = nil
	if got := r.Count(bus.TopicComponentUpdated); got != 2 {
		t.Errorf("registry mutated through All copy, count %d", got)
	}
}

func TestRegistry_Topics(t *testing.T) {
	r := New()

	r.Add(bus.TopicSystemStatus, "a")
	r.Add(bus.TopicComponentCreated, "b")

	topics := r.Topics()
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %v", topics)
	}
	if topics[0] != bus.TopicComponentCreated || topics[1] != bus.TopicSystemStatus {
		t.Errorf("expected sorted topics, got %v", topics)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("sub-%d", n)
			for j := 0; j < 100; j++ {
				r.Add(bus.TopicComponentUpdated, id)
				r.Count(bus.TopicComponentUpdated)
				r.Remove(bus.TopicComponentUpdated, id)
			}
		}(i)
	}
	wg.Wait()

	if got := r.Count(bus.TopicComponentUpdated); got != 0 {
		t.Errorf("expected empty registry after balanced add/remove, got %d", got)
	}
}
