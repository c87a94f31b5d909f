package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/darrien-wang/QuickLabel/internal/batch"
	"github.com/darrien-wang/QuickLabel/internal/buildinfo"
	"github.com/darrien-wang/QuickLabel/internal/printqueue"
	"github.com/darrien-wang/QuickLabel/internal/services/scanning"
	"github.com/darrien-wang/QuickLabel/internal/sync"
	"github.com/darrien-wang/QuickLabel/internal/utils"
)

// Router wraps the mux router and the scan pipeline components
type Router struct {
	*mux.Router
	store   *batch.Store
	repo    *batch.Repository
	scanner *scanning.Service
	session *sync.Session
	queue   *printqueue.Processor
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(store *batch.Store, repo *batch.Repository, scanner *scanning.Service, session *sync.Session, queue *printqueue.Processor) *Router {
	r := &Router{
		Router:  mux.NewRouter(),
		store:   store,
		repo:    repo,
		scanner: scanner,
		session: session,
		queue:   queue,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", r.getStatus).Methods("GET")
	api.HandleFunc("/scan", r.handleScan).Methods("POST")

	// Batch routes
	batches := r.PathPrefix("/api/batches").Subrouter()
	batches.HandleFunc("", r.listBatches).Methods("GET")
	batches.HandleFunc("/import", r.importBatch).Methods("POST")
	batches.HandleFunc("/active", r.getActiveBatch).Methods("GET")
	batches.HandleFunc("/{id}/activate", r.activateBatch).Methods("PUT")

	// Sync routes
	syncR := r.PathPrefix("/api/sync").Subrouter()
	syncR.HandleFunc("/status", r.syncStatus).Methods("GET")
	syncR.HandleFunc("/host/start", r.startHost).Methods("POST")
	syncR.HandleFunc("/host/stop", r.stopHost).Methods("POST")
	syncR.HandleFunc("/connect", r.connectToHost).Methods("POST")
	syncR.HandleFunc("/disconnect", r.disconnectFromHost).Methods("POST")
	syncR.HandleFunc("/refresh", r.refreshSync).Methods("POST")

	// Print routes
	print := r.PathPrefix("/api/print").Subrouter()
	print.HandleFunc("/queue", r.printQueue).Methods("GET")
	print.HandleFunc("/printer", r.setPrinter).Methods("PUT")
	print.HandleFunc("/records/{id}", r.printRecord).Methods("POST")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// getStatus returns workstation diagnostics
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	scanned, total := r.store.Stats()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "running",
		"buildTime":     buildinfo.BuildTime,
		"startTime":     buildinfo.StartTime,
		"uptime":        buildinfo.Uptime().String(),
		"localIps":      utils.GetLocalIPs(),
		"sync":          r.session.Status(),
		"activeBatchId": r.store.ActiveID(),
		"scanned":       scanned,
		"total":         total,
		"printerId":     r.queue.PrinterID(),
		"queuedPrints":  len(r.queue.Tasks()),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
