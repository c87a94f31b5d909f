package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// PrinterRequest selects the printer identity for subsequent tasks
type PrinterRequest struct {
	PrinterID string `json:"printerId"`
}

// printQueue returns a snapshot of queued print tasks in FIFO order
func (r *Router) printQueue(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.queue.Tasks())
}

// setPrinter switches the selected printer
func (r *Router) setPrinter(w http.ResponseWriter, req *http.Request) {
	var body PrinterRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.PrinterID == "" {
		respondError(w, http.StatusBadRequest, "printerId is required")
		return
	}
	r.queue.SetPrinter(body.PrinterID)
	if r.repo != nil {
		if st, err := r.repo.LoadState(); err == nil {
			st.PrinterID = body.PrinterID
			if err := r.repo.SaveState(st); err != nil {
				log.Printf("⚠️  Failed to persist printer selection: %v", err)
			}
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"printerId": body.PrinterID})
}

// printRecord manually enqueues a label for one record of the active
// batch (or of ?batch=<id>). Bypasses auto-print duplicate suppression.
func (r *Router) printRecord(w http.ResponseWriter, req *http.Request) {
	recordID := mux.Vars(req)["id"]
	batchID := req.URL.Query().Get("batch")

	taskID, err := r.scanner.PrintRecord(batchID, recordID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}
