package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/darrien-wang/QuickLabel/internal/batch"
	"github.com/darrien-wang/QuickLabel/internal/sync"
)

// ScanRequest represents the payload from a scanner
type ScanRequest struct {
	Barcode string `json:"barcode"`
}

// handleScan is the entry point for all barcode scans on this device
func (r *Router) handleScan(w http.ResponseWriter, req *http.Request) {
	var body ScanRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := r.scanner.Scan(body.Barcode)
	if err != nil {
		switch {
		case errors.Is(err, sync.ErrNotConnected):
			// No offline queue: the operator retries once reconnected.
			respondError(w, http.StatusConflict, "Not connected to host")
		case errors.Is(err, batch.ErrNoBatch):
			respondError(w, http.StatusConflict, "No active batch")
		default:
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}
