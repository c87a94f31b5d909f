package sync

import (
	gosync "sync"

	"github.com/darrien-wang/QuickLabel/internal/models"
)

// EventKind classifies session events surfaced to the application layer.
type EventKind string

const (
	EventRoleChanged      EventKind = "role-changed"
	EventPeerConnected    EventKind = "peer-connected"    // host: a client attached
	EventPeerDisconnected EventKind = "peer-disconnected" // host: a client detached
	EventConnected        EventKind = "connected"         // client: link to host up
	EventDisconnected     EventKind = "disconnected"      // client: link to host lost
	EventSyncRequested    EventKind = "sync-requested"    // host: snapshot served to a client
	EventSnapshotApplied  EventKind = "snapshot-applied"  // client: cache replaced
	EventScanApplied      EventKind = "scan-applied"      // broadcast landed in the local cache
	EventSyncError        EventKind = "sync-error"        // recovered fault (payload, send, ...)
)

// Event is one entry of the session's event stream.
type Event struct {
	Kind    EventKind         `json:"kind"`
	Role    Role              `json:"role"`
	Peer    string            `json:"peer,omitempty"`
	Scan    *models.ScanEvent `json:"scan,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Bus fans session events out to subscribers. Every Subscribe returns a
// disposer and the session's teardown path runs all disposers it
// registered itself, so listeners cannot pile up across reconnects.
type Bus struct {
	mu     gosync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns its disposer. Handlers run
// on the publishing goroutine and must not block.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers an event to every subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
