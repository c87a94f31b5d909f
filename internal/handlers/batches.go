package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/darrien-wang/QuickLabel/internal/batch"
)

// batchSummary avoids shipping every record on list endpoints
type batchSummary struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	PrimaryKeyColumn string `json:"primaryKeyColumn"`
	Version          int64  `json:"version"`
	Records          int    `json:"records"`
	Scanned          int    `json:"scanned"`
	Active           bool   `json:"active"`
}

// listBatches returns summaries of every loaded batch
func (r *Router) listBatches(w http.ResponseWriter, req *http.Request) {
	activeID := r.store.ActiveID()
	all := r.store.Batches()
	out := make([]batchSummary, 0, len(all))
	for _, b := range all {
		s := batchSummary{
			ID:               b.ID,
			Name:             b.Name,
			PrimaryKeyColumn: b.PrimaryKeyColumn,
			Version:          b.Version,
			Records:          len(b.Records),
			Active:           b.ID == activeID,
		}
		for i := range b.Records {
			if b.Records[i].Scanned {
				s.Scanned++
			}
		}
		out = append(out, s)
	}
	respondJSON(w, http.StatusOK, out)
}

// importBatch ingests a CSV payload as a new batch. Query parameters:
// name (display name) and pk (primary key column). Only meaningful on
// the authoritative side; clients are overwritten by the next snapshot.
func (r *Router) importBatch(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("name")
	pk := req.URL.Query().Get("pk")

	b, err := batch.ImportCSV(name, pk, req.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.store.Put(*b)
	if r.store.ActiveID() == "" {
		_ = r.store.SetActive(b.ID)
	}
	r.persist()

	log.Printf("📥 Imported batch %q: %d records (key: %s)", b.Name, len(b.Records), b.PrimaryKeyColumn)
	respondJSON(w, http.StatusCreated, batchSummary{
		ID:               b.ID,
		Name:             b.Name,
		PrimaryKeyColumn: b.PrimaryKeyColumn,
		Records:          len(b.Records),
		Active:           r.store.ActiveID() == b.ID,
	})
}

// getActiveBatch returns the full active batch including records
func (r *Router) getActiveBatch(w http.ResponseWriter, req *http.Request) {
	b, err := r.store.Active()
	if err != nil {
		respondError(w, http.StatusNotFound, "No active batch")
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// activateBatch switches the active batch
func (r *Router) activateBatch(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if err := r.store.SetActive(id); err != nil {
		if errors.Is(err, batch.ErrUnknownBatch) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.persist()
	respondJSON(w, http.StatusOK, map[string]string{"activeBatchId": id})
}

// persist writes the current store state through the repository.
// Persistence failures are logged but never fail the request; the
// in-memory state is already correct and a later save may succeed.
func (r *Router) persist() {
	if r.repo == nil {
		return
	}
	if err := r.repo.SaveAll(r.store.Batches()); err != nil {
		log.Printf("⚠️  Failed to persist batches: %v", err)
	}
	st, err := r.repo.LoadState()
	if err == nil {
		st.ActiveBatchID = r.store.ActiveID()
		if err := r.repo.SaveState(st); err != nil {
			log.Printf("⚠️  Failed to persist workstation state: %v", err)
		}
	}
}
