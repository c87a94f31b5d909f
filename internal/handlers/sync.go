package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/darrien-wang/QuickLabel/internal/sync"
)

// ConnectRequest carries the operator-entered host address
type ConnectRequest struct {
	Address string `json:"address"`
}

// syncStatus reports role and connection state for the UI and for
// restoration decisions after a restart
func (r *Router) syncStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.session.Status())
}

// startHost binds the sync port and starts accepting workstations
func (r *Router) startHost(w http.ResponseWriter, req *http.Request) {
	status, err := r.session.StartHost()
	if err != nil {
		if errors.Is(err, sync.ErrRoleBusy) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		// Bind failures are user-facing, no retry loop.
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	r.saveSyncHints("host", "")
	respondJSON(w, http.StatusOK, status)
}

// stopHost tears the host role down; always succeeds
func (r *Router) stopHost(w http.ResponseWriter, req *http.Request) {
	r.session.StopHost()
	r.saveSyncHints("standalone", "")
	respondJSON(w, http.StatusOK, r.session.Status())
}

// connectToHost joins this workstation to a host
func (r *Router) connectToHost(w http.ResponseWriter, req *http.Request) {
	var body ConnectRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := r.session.ConnectToHost(body.Address); err != nil {
		switch {
		case errors.Is(err, sync.ErrInvalidAddress):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, sync.ErrRoleBusy):
			respondError(w, http.StatusConflict, err.Error())
		default:
			// Connect faults are recoverable; the operator may retry.
			respondError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	r.saveSyncHints("client", body.Address)
	respondJSON(w, http.StatusOK, r.session.Status())
}

// disconnectFromHost drops the client link; idempotent
func (r *Router) disconnectFromHost(w http.ResponseWriter, req *http.Request) {
	r.session.DisconnectFromHost()
	r.saveSyncHints("standalone", "")
	respondJSON(w, http.StatusOK, r.session.Status())
}

// refreshSync re-requests a full snapshot from the host
func (r *Router) refreshSync(w http.ResponseWriter, req *http.Request) {
	if err := r.session.RequestSync(); err != nil {
		respondError(w, http.StatusConflict, "Not connected to host")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// saveSyncHints records how the session was armed so main can restore
// the role on the next start. The session itself stays stateless.
func (r *Router) saveSyncHints(role, addr string) {
	if r.repo == nil {
		return
	}
	st, err := r.repo.LoadState()
	if err != nil {
		log.Printf("⚠️  Failed to load workstation state: %v", err)
		return
	}
	st.LastRole = role
	if role == "client" {
		st.LastHostAddr = addr
	}
	if err := r.repo.SaveState(st); err != nil {
		log.Printf("⚠️  Failed to save sync hints: %v", err)
	}
}
