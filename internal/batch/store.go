package batch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/darrien-wang/QuickLabel/internal/models"
)

var (
	// ErrNoBatch is returned when an operation needs an active batch and none is set.
	ErrNoBatch = errors.New("no active batch")
	// ErrUnknownBatch is returned for operations naming a batch id not in the store.
	ErrUnknownBatch = errors.New("unknown batch")
)

// ScanCallback is invoked after a scan has been applied to the store.
// Fires only for first hits (state changes), never for misses or re-scans.
type ScanCallback func(ev models.ScanEvent, rec models.Record)

// Store is the in-memory record table. On a Host (or Standalone, a host
// of one) it is the single writable copy and its mutex is the
// serialization point for all scan mutations. On a Client it is a
// disposable cache: replaced wholesale by snapshots, patched by
// broadcasts, never merged.
type Store struct {
	mu sync.Mutex

	batches  map[string]*models.Batch
	order    []string // batch ids in insertion order
	index    map[string]map[string]*models.Record // batchID -> trackingID -> record
	activeID string

	nextSubID int
	onScan    map[int]ScanCallback
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		batches: make(map[string]*models.Batch),
		index:   make(map[string]map[string]*models.Record),
		onScan:  make(map[int]ScanCallback),
	}
}

// Put inserts or replaces a batch and rebuilds its primary-key index.
func (s *Store) Put(b models.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(b)
}

func (s *Store) putLocked(b models.Batch) {
	cp := b.Clone()
	if _, exists := s.batches[cp.ID]; !exists {
		s.order = append(s.order, cp.ID)
	}
	s.batches[cp.ID] = &cp
	idx := make(map[string]*models.Record, len(cp.Records))
	for i := range cp.Records {
		idx[cp.Records[i].ID] = &cp.Records[i]
	}
	s.index[cp.ID] = idx
}

// SetActive marks a batch as the active one.
func (s *Store) SetActive(batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batchID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBatch, batchID)
	}
	s.activeID = batchID
	return nil
}

// ActiveID returns the active batch id ("" when none).
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Active returns a copy of the active batch.
func (s *Store) Active() (models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[s.activeID]
	if !ok {
		return models.Batch{}, ErrNoBatch
	}
	return b.Clone(), nil
}

// Batches returns copies of all batches in insertion order.
func (s *Store) Batches() []models.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Batch, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.batches[id].Clone())
	}
	return out
}

// Snapshot returns deep copies of every batch plus the active id, the
// payload shape of a full-sync response.
func (s *Store) Snapshot() ([]models.Batch, string) {
	return s.Batches(), s.ActiveID()
}

// Resolve looks up code against the active batch's primary-key index
// and applies the scan. Host-side only (Standalone included); clients
// never mutate their cache directly.
//
// Miss: record not found, no state change. First hit: scanned flips to
// true and scannedAt is stamped. Re-scan: no state change, original
// scannedAt preserved. Subscribed callbacks fire for first hits only,
// which makes the store the at-most-once broadcast gate.
func (s *Store) Resolve(code, originLabel string) (models.Outcome, error) {
	s.mu.Lock()
	b, ok := s.batches[s.activeID]
	if !ok {
		s.mu.Unlock()
		return models.Outcome{}, ErrNoBatch
	}
	rec, ok := s.index[s.activeID][code]
	if !ok {
		s.mu.Unlock()
		return models.Outcome{Kind: models.OutcomeMiss}, nil
	}
	if rec.Scanned {
		cp := rec.Clone()
		s.mu.Unlock()
		return models.Outcome{Kind: models.OutcomeHit, IsRescan: true, Record: &cp}, nil
	}

	now := time.Now().UTC()
	rec.Scanned = true
	rec.ScannedAt = &now
	b.Version++
	cp := rec.Clone()
	cbs := make([]ScanCallback, 0, len(s.onScan))
	for _, cb := range s.onScan {
		cbs = append(cbs, cb)
	}
	ev := models.ScanEvent{
		BatchID:        b.ID,
		TrackingNumber: cp.ID,
		ScannedAt:      now,
		OriginLabel:    originLabel,
	}
	s.mu.Unlock()

	// Callbacks run outside the lock so a subscriber may re-enter the store.
	for _, cb := range cbs {
		cb(ev, cp)
	}
	return models.Outcome{Kind: models.OutcomeHit, Record: &cp}, nil
}

// Lookup is the read-only twin of Resolve, used on clients for
// immediate operator feedback while the submit round-trips.
func (s *Store) Lookup(code string) (models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[s.activeID]; !ok {
		return models.Outcome{}, ErrNoBatch
	}
	rec, ok := s.index[s.activeID][code]
	if !ok {
		return models.Outcome{Kind: models.OutcomeMiss}, nil
	}
	cp := rec.Clone()
	return models.Outcome{Kind: models.OutcomeHit, IsRescan: rec.Scanned, Record: &cp}, nil
}

// ReplaceAll discards every batch and installs the snapshot. Client
// side of a full-sync: the snapshot always wins over local state.
func (s *Store) ReplaceAll(batches []models.Batch, activeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = make(map[string]*models.Batch, len(batches))
	s.index = make(map[string]map[string]*models.Record, len(batches))
	s.order = s.order[:0]
	for _, b := range batches {
		s.putLocked(b)
	}
	s.activeID = ""
	if _, ok := s.batches[activeID]; ok {
		s.activeID = activeID
	}
}

// ApplyRemoteScan patches the cache with a broadcast scan. Idempotent
// by id: stamping the same values twice is harmless, so it applies
// unconditionally without comparing timestamps.
func (s *Store) ApplyRemoteScan(ev models.ScanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[ev.BatchID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBatch, ev.BatchID)
	}
	rec, ok := idx[ev.TrackingNumber]
	if !ok {
		// Cache is behind the host (e.g. snapshot in flight). Harmless.
		return nil
	}
	t := ev.ScannedAt
	rec.Scanned = true
	rec.ScannedAt = &t
	return nil
}

// OnScanApplied registers a callback fired after each first hit. The
// returned disposer must be invoked on teardown; subscriptions never
// expire on their own.
func (s *Store) OnScanApplied(cb func(ev models.ScanEvent, rec models.Record)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.onScan[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onScan, id)
	}
}

// Get returns a copy of one record by batch and tracking id.
func (s *Store) Get(batchID, trackingID string) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[batchID]
	if !ok {
		return models.Record{}, false
	}
	rec, ok := idx[trackingID]
	if !ok {
		return models.Record{}, false
	}
	return rec.Clone(), true
}

// BatchName returns a batch's display name ("" when unknown).
func (s *Store) BatchName(batchID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.batches[batchID]; ok {
		return b.Name
	}
	return ""
}

// Stats returns scanned/total counts for the active batch.
func (s *Store) Stats() (scanned, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[s.activeID]
	if !ok {
		return 0, 0
	}
	for i := range b.Records {
		if b.Records[i].Scanned {
			scanned++
		}
	}
	return scanned, len(b.Records)
}
