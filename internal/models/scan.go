package models

import "time"

// ScanEvent is the unit of replication: one code read on one device.
// Immutable once created. ScannedAt is zero until the host resolves
// the scan; broadcasts always carry the resolved timestamp.
type ScanEvent struct {
	BatchID        string    `json:"batchId"`
	TrackingNumber string    `json:"trackingNumber"`
	ScannedAt      time.Time `json:"scannedAt"`
	OriginLabel    string    `json:"originLabel"`
}

// OutcomeKind classifies the result of resolving a scan.
type OutcomeKind string

const (
	OutcomeMiss OutcomeKind = "miss"
	OutcomeHit  OutcomeKind = "hit"
)

// Outcome is what the resolver returns: a miss, a first hit (record
// just stamped), or a re-scan hit (state untouched).
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	IsRescan bool        `json:"isRescan"`
	Record   *Record     `json:"record,omitempty"`
}

// ScanResult is the operator-facing answer to a scan, combining the
// resolution outcome with where it was resolved.
type ScanResult struct {
	Outcome   Outcome `json:"outcome"`
	Code      string  `json:"code"`
	Resolved  string  `json:"resolved"`  // "local" or "submitted"
	Message   string  `json:"message"`   // human readable status
	WillPrint bool    `json:"willPrint"` // a print task was (or will be) enqueued
}
