package scanning

import (
	"errors"
	"fmt"
	"strings"

	"github.com/darrien-wang/QuickLabel/internal/batch"
	"github.com/darrien-wang/QuickLabel/internal/models"
	"github.com/darrien-wang/QuickLabel/internal/printqueue"
	"github.com/darrien-wang/QuickLabel/internal/sync"
)

// Service glues scans to the store, the sync session and the print
// queue. Each workstation prints only its OWN successful scans: on a
// host that is every first hit whose origin label is ours; on a client
// it is every broadcast that echoes back a submit we sent.
type Service struct {
	store   *batch.Store
	session *sync.Session
	queue   *printqueue.Processor

	disposers []func()
}

// NewService wires the scan pipeline.
func NewService(store *batch.Store, session *sync.Session, queue *printqueue.Processor) *Service {
	return &Service{store: store, session: session, queue: queue}
}

// Start registers the auto-print subscriptions. Both return disposers
// held until Stop.
func (s *Service) Start() {
	origin := s.session.OriginLabel()

	// Host/Standalone path: first hits applied locally. Remote submits
	// flow through the same store hook but carry the client's origin
	// label, so the host never prints another device's scans.
	s.disposers = append(s.disposers, s.store.OnScanApplied(func(ev models.ScanEvent, rec models.Record) {
		if ev.OriginLabel != origin {
			return
		}
		s.autoPrint(ev.BatchID, rec)
	}))

	// Client path: our submit comes back as a broadcast once the host
	// resolved it. Broadcasts originated elsewhere only patch the cache.
	s.disposers = append(s.disposers, s.session.Events().Subscribe(func(ev sync.Event) {
		if ev.Kind != sync.EventScanApplied || ev.Scan == nil {
			return
		}
		if ev.Scan.OriginLabel != origin {
			return
		}
		if rec, ok := s.store.Get(ev.Scan.BatchID, ev.Scan.TrackingNumber); ok {
			s.autoPrint(ev.Scan.BatchID, rec)
		}
	}))
}

// Stop releases the subscriptions.
func (s *Service) Stop() {
	for _, dispose := range s.disposers {
		dispose()
	}
	s.disposers = nil
}

func (s *Service) autoPrint(batchID string, rec models.Record) {
	s.queue.AutoEnqueue(rec, s.store.BatchName(batchID))
}

// Scan is the operator entry point for a code read on this device.
//
// Host and Standalone resolve against the authoritative store (the
// broadcast, if any, rides the store's scan hook). A Client never
// resolves: it submits to the host and answers the operator from its
// read-only cache while the broadcast round-trips. A disconnected
// client fails fast — there is no offline queue.
func (s *Service) Scan(code string) (models.ScanResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.ScanResult{}, fmt.Errorf("empty scan code")
	}

	if s.session.Role() == sync.RoleClient {
		return s.scanAsClient(code)
	}

	outcome, err := s.store.Resolve(code, s.session.OriginLabel())
	if err != nil {
		return models.ScanResult{}, err
	}
	res := models.ScanResult{
		Outcome:  outcome,
		Code:     code,
		Resolved: "local",
	}
	switch {
	case outcome.Kind == models.OutcomeMiss:
		res.Message = "not found"
	case outcome.IsRescan:
		res.Message = "already scanned"
	default:
		res.Message = "scanned"
		res.WillPrint = true
	}
	return res, nil
}

func (s *Service) scanAsClient(code string) (models.ScanResult, error) {
	if err := s.session.SubmitScan(code); err != nil {
		return models.ScanResult{}, err
	}

	res := models.ScanResult{
		Code:     code,
		Resolved: "submitted",
	}
	outcome, err := s.store.Lookup(code)
	if err != nil {
		if errors.Is(err, batch.ErrNoBatch) {
			// No snapshot yet; the host decides everything.
			res.Message = "submitted to host"
			return res, nil
		}
		return models.ScanResult{}, err
	}
	res.Outcome = outcome
	switch {
	case outcome.Kind == models.OutcomeMiss:
		res.Message = "not found"
	case outcome.IsRescan:
		res.Message = "already scanned"
	default:
		res.Message = "scanned"
		res.WillPrint = true
	}
	return res, nil
}

// PrintRecord is the manual "print now" path. It bypasses the
// duplicate-suppression window on purpose.
func (s *Service) PrintRecord(batchID, recordID string) (string, error) {
	if batchID == "" {
		batchID = s.store.ActiveID()
	}
	rec, ok := s.store.Get(batchID, recordID)
	if !ok {
		return "", fmt.Errorf("record %q not found in batch %q", recordID, batchID)
	}
	return s.queue.Enqueue(rec, s.store.BatchName(batchID)), nil
}
