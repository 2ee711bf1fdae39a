package jobworker

import (
	"sync"
	"time"

	"evalforge/pkg/ulid"
)

// CancelRegistry is the memory-resident set of recently-cancelled job ids.
// Entries expire after the ttl so the set stays bounded.
type CancelRegistry struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
}

func NewCancelRegistry(ttl time.Duration) *CancelRegistry {
	return &CancelRegistry{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

func (r *CancelRegistry) Add(jobID ulid.ULID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	r.entries[jobID.String()] = time.Now()
}

func (r *CancelRegistry) Contains(jobID ulid.ULID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	_, ok := r.entries[jobID.String()]
	return ok
}

// prune drops expired entries. Callers hold the lock.
func (r *CancelRegistry) prune() {
	cutoff := time.Now().Add(-r.ttl)
	for id, added := range r.entries {
		if added.Before(cutoff) {
			delete(r.entries, id)
		}
	}
}
