package utils

import (
	"sync"
	"time"
)

// Deduplicator remembers message ids for a bounded window so network
// retries of the same frame can be absorbed before they reach any
// state-changing code path.
type Deduplicator struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

// NewDeduplicator creates a deduplicator with the given memory window.
func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// IsDuplicate reports whether the id was seen within the window, and
// records it either way. Empty ids are never duplicates.
func (d *Deduplicator) IsDuplicate(id string) bool {
	if id == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if ts, exists := d.seen[id]; exists && now.Sub(ts) < d.window {
		return true
	}
	d.seen[id] = now

	// Cleanup old entries if the map gets too big
	if len(d.seen) > 10000 {
		for k, v := range d.seen {
			if now.Sub(v) > 2*d.window {
				delete(d.seen, k)
			}
		}
	}
	return false
}
