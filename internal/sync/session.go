package sync

import (
	"fmt"
	"log"
	"net"
	"strconv"
	gosync "sync"
	"time"

	"github.com/darrien-wang/QuickLabel/internal/config"
	"github.com/darrien-wang/QuickLabel/internal/models"
	"github.com/darrien-wang/QuickLabel/internal/utils"
)

// Role is the session's place in the warehouse topology.
type Role string

const (
	RoleStandalone Role = "standalone"
	RoleHost       Role = "host"
	RoleClient     Role = "client"
)

// Status answers the session status query. The session persists
// nothing itself; callers use the status (and their own stored hints)
// to re-arm the session after a restart.
type Status struct {
	Role          Role   `json:"role"`
	Connected     bool   `json:"connected"`
	LocalAddress  string `json:"localAddress,omitempty"`
	RemoteAddress string `json:"remoteAddress,omitempty"`
	Peers         int    `json:"peers"`
}

// RecordSource is the record store as the session sees it. On a host
// the session resolves submits through it and broadcasts off its scan
// subscription; on a client it replaces and patches the cache.
type RecordSource interface {
	Snapshot() (batches []models.Batch, activeID string)
	ActiveID() string
	Resolve(code, originLabel string) (models.Outcome, error)
	ReplaceAll(batches []models.Batch, activeID string)
	ApplyRemoteScan(ev models.ScanEvent) error
	OnScanApplied(cb func(ev models.ScanEvent, rec models.Record)) func()
}

// Session is the role state machine owning all connection lifecycle.
// Valid transitions pass through Standalone: a host must stop hosting
// before it can connect out, and vice versa. One Session is constructed
// per process and handed to whoever needs to emit or receive protocol
// messages; there is no package-level connection state.
type Session struct {
	cfg    config.SyncConfig
	source RecordSource
	bus    *Bus

	mu        gosync.Mutex
	role      Role
	hub       *hostHub
	link      *hostLink
	disposers []func()
}

// NewSession creates a session in the Standalone role.
func NewSession(cfg config.SyncConfig, source RecordSource) *Session {
	return &Session{
		cfg:    cfg,
		source: source,
		bus:    NewBus(),
		role:   RoleStandalone,
	}
}

// Events exposes the session's event stream.
func (s *Session) Events() *Bus {
	return s.bus
}

// StartHost binds the well-known sync port and begins accepting
// clients. Returns the LAN-reachable address operators type into
// client machines. Fails with ErrBind (port busy, no usable interface)
// leaving the session Standalone; already hosting is a no-op.
func (s *Session) StartHost() (Status, error) {
	s.mu.Lock()
	if s.role == RoleClient {
		s.mu.Unlock()
		return Status{}, fmt.Errorf("%w: disconnect from host first", ErrRoleBusy)
	}
	if s.role == RoleHost {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, nil
	}

	hub := newHostHub(s.source, s.bus)
	if err := hub.start(s.cfg.Port); err != nil {
		s.mu.Unlock()
		return Status{}, err
	}
	s.hub = hub

	// Every first hit applied to the store — local scan or remote
	// submit — goes out exactly once through this subscription.
	dispose := s.source.OnScanApplied(func(ev models.ScanEvent, _ models.Record) {
		hub.broadcastScan(ev)
	})
	s.disposers = append(s.disposers, dispose)

	s.role = RoleHost
	st := s.statusLocked()
	s.mu.Unlock()

	log.Printf("🚀 Hosting scan sync on %s", st.LocalAddress)
	s.bus.Publish(Event{Kind: EventRoleChanged, Role: RoleHost})
	return st, nil
}

// StopHost closes the listening endpoint and disconnects all clients.
// Always succeeds; stopping a non-host is a no-op.
func (s *Session) StopHost() {
	s.mu.Lock()
	if s.role != RoleHost {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	log.Printf("🛑 Stopped hosting scan sync")
	s.bus.Publish(Event{Kind: EventRoleChanged, Role: RoleStandalone})
}

// ConnectToHost dials address (host or host:port) and requests a full
// sync. Fails with ErrInvalidAddress or ErrConnect leaving the session
// Standalone. A client whose link has dropped may reconnect directly;
// a connected client or a host must tear down first.
func (s *Session) ConnectToHost(address string) error {
	addr, err := normalizeHostAddr(address, s.cfg.Port)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.role == RoleHost {
		s.mu.Unlock()
		return fmt.Errorf("%w: stop hosting first", ErrRoleBusy)
	}
	if s.role == RoleClient && s.link != nil && s.link.isAlive() {
		s.mu.Unlock()
		return fmt.Errorf("%w: already connected, disconnect first", ErrRoleBusy)
	}
	// Reconnect path: drop the dead link's resources before dialing.
	s.teardownLocked()
	s.mu.Unlock()

	link, err := dialHost(addr, s.cfg.DialTimeout, s.source, s.bus)
	if err != nil {
		return err
	}

	s.mu.Lock()
	// The mutex was released across the dial. If a StartHost or a
	// competing connect claimed the session in that window, the late
	// link loses: tear it down before it touches anything.
	if s.role != RoleStandalone || s.link != nil {
		s.mu.Unlock()
		link.close()
		return fmt.Errorf("%w: role changed during connect", ErrRoleBusy)
	}
	s.link = link
	s.role = RoleClient
	s.mu.Unlock()

	log.Printf("🔗 Connected to host %s", addr)
	s.bus.Publish(Event{Kind: EventRoleChanged, Role: RoleClient})
	s.bus.Publish(Event{Kind: EventConnected, Role: RoleClient, Peer: addr})
	return nil
}

// DisconnectFromHost closes the client connection. Idempotent.
func (s *Session) DisconnectFromHost() {
	s.mu.Lock()
	if s.role != RoleClient {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	log.Printf("🔗 Disconnected from host")
	s.bus.Publish(Event{Kind: EventRoleChanged, Role: RoleStandalone})
}

// RequestSync re-asks the host for a full snapshot (explicit refresh).
func (s *Session) RequestSync() error {
	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil || !link.isAlive() {
		return ErrNotConnected
	}
	link.requestSync()
	return nil
}

// SubmitScan reports a code read on this client to the host. Fails
// fast with ErrNotConnected while the link is down — there is no
// offline queue or merge, by design.
func (s *Session) SubmitScan(code string) error {
	s.mu.Lock()
	if s.role != RoleClient || s.link == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	link := s.link
	s.mu.Unlock()

	ev := models.ScanEvent{
		BatchID:        s.source.ActiveID(),
		TrackingNumber: code,
		ScannedAt:      time.Time{}, // the host stamps resolution time
		OriginLabel:    s.cfg.OriginLabel,
	}
	return link.submit(ev)
}

// OriginLabel identifies this workstation in scan events.
func (s *Session) OriginLabel() string {
	return s.cfg.OriginLabel
}

// Role returns the current role.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Status reports the current role and connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{Role: s.role}
	switch s.role {
	case RoleHost:
		st.Connected = true
		st.Peers = s.hub.peerCount()
		// Loopback-only machines can still host for themselves.
		ip := "127.0.0.1"
		if ips := utils.GetLocalIPs(); len(ips) > 0 {
			ip = ips[0]
		}
		st.LocalAddress = net.JoinHostPort(ip, strconv.Itoa(s.hub.port()))
	case RoleClient:
		st.Connected = s.link != nil && s.link.isAlive()
		if s.link != nil {
			st.RemoteAddress = s.link.remoteAddr
			st.LocalAddress = s.link.localAddr
		}
	}
	return st
}

// Close tears down whatever role is active. Used on shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
}

// teardownLocked fully dismantles the current role: listener or link
// closed, every disposer registered during the role's lifetime run.
// Callers hold s.mu.
func (s *Session) teardownLocked() {
	if s.hub != nil {
		s.hub.stop()
		s.hub = nil
	}
	if s.link != nil {
		s.link.close()
		s.link = nil
	}
	for _, dispose := range s.disposers {
		dispose()
	}
	s.disposers = nil
	s.role = RoleStandalone
}
