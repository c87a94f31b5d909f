package sync

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/darrien-wang/QuickLabel/internal/models"
	"github.com/darrien-wang/QuickLabel/internal/utils"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Snapshots carry whole
	// batches (tens of thousands of records), so this is generous.
	maxMessageSize = 16 * 1024 * 1024 // 16MB

	// Client-side read limit, deliberately above the host's bound so
	// any frame the host can emit is never a connection-fatal read
	// error on the receiving side. Websocket framing gives no way to
	// skip an even larger frame: past this the connection drops and
	// recovery is a reconnect plus full sync.
	clientMaxMessageSize = 2 * maxMessageSize

	// Outbound buffer per peer; a full buffer drops the frame rather
	// than stalling the hub.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The LAN is trusted by design; any workstation may attach.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hostHub owns the listening side of a Host session: it accepts client
// connections, answers full-sync requests, and funnels scan submits
// into the record source (whose mutex is the single-writer
// serialization point). Adapted per-connection read/write pumps keep
// the gorilla ping/pong contract.
type hostHub struct {
	source RecordSource
	bus    *Bus

	listener net.Listener
	server   *http.Server

	mu    gosync.RWMutex
	peers map[string]*peer

	// Absorbs network-level retries of the same submit frame before
	// they reach the resolver.
	submits *utils.Deduplicator
}

func newHostHub(source RecordSource, bus *Bus) *hostHub {
	return &hostHub{
		source:  source,
		bus:     bus,
		peers:   make(map[string]*peer),
		submits: utils.NewDeduplicator(5 * time.Minute),
	}
}

// start binds the well-known sync port and begins accepting clients.
func (h *hostHub) start(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBind, err)
	}
	h.listener = listener

	r := mux.NewRouter()
	r.HandleFunc("/ws", h.serveWs)
	h.server = &http.Server{Handler: r}

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️  Sync listener stopped: %v", err)
		}
	}()
	return nil
}

// port reports the actually-bound port (differs from the configured
// one only when configured as 0, e.g. in tests).
func (h *hostHub) port() int {
	if h.listener == nil {
		return 0
	}
	if addr, ok := h.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// stop closes the listener and disconnects every peer. Idempotent.
func (h *hostHub) stop() {
	if h.server != nil {
		_ = h.server.Close()
	}
	h.mu.Lock()
	for id, p := range h.peers {
		p.closeSend()
		delete(h.peers, id)
	}
	h.mu.Unlock()
}

// serveWs upgrades an incoming connection and registers the peer.
func (h *hostHub) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  Sync upgrade failed: %v", err)
		return
	}

	p := &peer{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		id:   uuid.New().String(),
	}

	h.mu.Lock()
	h.peers[p.id] = p
	count := len(h.peers)
	h.mu.Unlock()

	log.Printf("📱 Workstation connected: %s (%s) — %d attached", p.id, conn.RemoteAddr(), count)
	h.bus.Publish(Event{Kind: EventPeerConnected, Role: RoleHost, Peer: p.id})

	go p.writePump()
	go p.readPump()
}

// unregister drops a peer after its read pump exits.
func (h *hostHub) unregister(p *peer) {
	h.mu.Lock()
	if _, ok := h.peers[p.id]; ok {
		delete(h.peers, p.id)
		p.closeSend()
	}
	count := len(h.peers)
	h.mu.Unlock()

	log.Printf("📴 Workstation disconnected: %s — %d attached", p.id, count)
	h.bus.Publish(Event{Kind: EventPeerDisconnected, Role: RoleHost, Peer: p.id})
}

// peerCount reports how many clients are attached.
func (h *hostHub) peerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// broadcast sends a frame to every attached peer.
func (h *hostHub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, p := range h.peers {
		select {
		case p.send <- data:
		default:
			// Buffer full or peer dead; the frame is dropped and the
			// peer recovers via its next full-sync request.
			log.Printf("⚠️  Dropping frame for slow peer %s", id)
		}
	}
}

// broadcastScan publishes a resolved scan to every client. Called via
// the record source's scan subscription, which fires once per first
// hit — re-scans and duplicate submits never reach this point.
func (h *hostHub) broadcastScan(ev models.ScanEvent) {
	data, err := encodeMessage(MsgScanBroadcast, uuid.New().String(), ev)
	if err != nil {
		log.Printf("⚠️  Failed to encode scan broadcast: %v", err)
		return
	}
	h.broadcast(data)
}

// handleMessage dispatches one inbound frame from a peer. Faults are
// logged and absorbed; a bad frame never tears the connection down.
func (h *hostHub) handleMessage(p *peer, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("⚠️  Malformed frame from %s: %v", p.id, err)
		return
	}

	switch env.Type {
	case MsgRequestSync:
		// Full state, never incremental: batch sizes are bounded and
		// full-sync is infrequent, so simplicity wins over bandwidth.
		batches, activeID := h.source.Snapshot()
		data, err := encodeMessage(MsgSyncSnapshot, env.MsgID, SnapshotPayload{
			Batches:       batches,
			ActiveBatchID: activeID,
		})
		if err != nil {
			log.Printf("⚠️  Failed to encode snapshot for %s: %v", p.id, err)
			return
		}
		select {
		case p.send <- data:
		default:
			log.Printf("⚠️  Snapshot dropped for slow peer %s", p.id)
		}
		h.bus.Publish(Event{Kind: EventSyncRequested, Role: RoleHost, Peer: p.id})

	case MsgScanSubmit:
		if h.submits.IsDuplicate(env.MsgID) {
			return
		}
		var ev models.ScanEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			log.Printf("⚠️  Malformed scan submit from %s: %v", p.id, err)
			return
		}
		// The resolver stamps scannedAt and fires the broadcast hook on
		// first hits only; misses and re-scans are silently absorbed.
		outcome, err := h.source.Resolve(ev.TrackingNumber, ev.OriginLabel)
		if err != nil {
			log.Printf("⚠️  Submit from %s not resolvable: %v", p.id, err)
			return
		}
		if outcome.Kind == models.OutcomeMiss {
			log.Printf("🔍 Submit from %s: %q not found", ev.OriginLabel, ev.TrackingNumber)
		}

	default:
		log.Printf("⚠️  Unknown message type %q from %s", env.Type, p.id)
	}
}

// peer is one attached client connection on the host side.
type peer struct {
	hub  *hostHub
	conn *websocket.Conn
	send chan []byte
	id   string

	closeOnce gosync.Once
}

func (p *peer) closeSend() {
	p.closeOnce.Do(func() { close(p.send) })
}

// readPump pumps frames from the websocket into the hub.
func (p *peer) readPump() {
	defer func() {
		p.hub.unregister(p)
		p.conn.Close()
	}()
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error { p.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  Peer %s read error: %v", p.id, err)
			}
			break
		}
		p.hub.handleMessage(p, message)
	}
}

// writePump pumps frames from the send channel to the websocket.
func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
