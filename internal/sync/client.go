package sync

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/darrien-wang/QuickLabel/internal/models"
)

// hostLink is the client side of a session: exactly one connection to
// a host. It applies snapshots wholesale and broadcasts by id; it never
// resolves scans itself. When the link drops, the session stays in the
// Client role with a locally-detected disconnected substate.
type hostLink struct {
	source RecordSource
	bus    *Bus

	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	localAddr  string

	mu    gosync.Mutex
	alive bool

	closeOnce gosync.Once
}

// normalizeHostAddr validates an operator-entered address and applies
// the well-known port when none is given.
func normalizeHostAddr(address string, defaultPort int) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	if !strings.Contains(address, ":") {
		address = net.JoinHostPort(address, strconv.Itoa(defaultPort))
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("%w: bad port in %q", ErrInvalidAddress, address)
	}
	return net.JoinHostPort(host, port), nil
}

// dialHost opens the websocket to a host and starts the pumps. A dial
// that neither succeeds nor fails within the timeout is a connect
// error; the caller remains free to retry.
func dialHost(address string, timeout time.Duration, source RecordSource, bus *Bus) (*hostLink, error) {
	u := url.URL{Scheme: "ws", Host: address, Path: "/ws"}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, address, err)
	}

	l := &hostLink{
		source:     source,
		bus:        bus,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		remoteAddr: conn.RemoteAddr().String(),
		localAddr:  conn.LocalAddr().String(),
		alive:      true,
	}

	go l.writePump()
	go l.readPump()

	// Full-sync request goes out immediately; the snapshot replaces
	// whatever local state the cache holds.
	l.requestSync()

	return l, nil
}

func (l *hostLink) isAlive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alive
}

func (l *hostLink) markDead() {
	l.mu.Lock()
	l.alive = false
	l.mu.Unlock()
}

// close tears the link down. Idempotent.
func (l *hostLink) close() {
	l.closeOnce.Do(func() {
		l.markDead()
		close(l.send)
		l.conn.Close()
	})
}

// requestSync asks the host for a full snapshot. Safe to call again
// any time, e.g. for an explicit refresh.
func (l *hostLink) requestSync() {
	data, err := encodeMessage(MsgRequestSync, uuid.New().String(), nil)
	if err != nil {
		log.Printf("⚠️  Failed to encode sync request: %v", err)
		return
	}
	l.enqueueFrame(data)
}

// submit reports a locally-read code to the host. The local cache is
// not touched; resolution arrives via broadcast.
func (l *hostLink) submit(ev models.ScanEvent) error {
	if !l.isAlive() {
		return ErrNotConnected
	}
	data, err := encodeMessage(MsgScanSubmit, uuid.New().String(), ev)
	if err != nil {
		return fmt.Errorf("failed to encode scan submit: %w", err)
	}
	if !l.enqueueFrame(data) {
		return ErrNotConnected
	}
	return nil
}

func (l *hostLink) enqueueFrame(data []byte) (ok bool) {
	defer func() {
		// The send channel closes on teardown; a racing frame is a
		// failed send, not a panic.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case l.send <- data:
		return true
	default:
		return false
	}
}

// readPump applies host frames to the local cache until the link dies.
func (l *hostLink) readPump() {
	defer func() {
		l.markDead()
		l.conn.Close()
		l.bus.Publish(Event{Kind: EventDisconnected, Role: RoleClient, Peer: l.remoteAddr})
	}()
	l.conn.SetReadLimit(clientMaxMessageSize)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error { l.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  Host link read error: %v", err)
			}
			return
		}
		l.conn.SetReadDeadline(time.Now().Add(pongWait))
		l.handleMessage(message)
	}
}

// handleMessage applies one host frame. Payload faults discard the
// frame and keep the last-known-good state; they are never treated as
// connection-level errors.
func (l *hostLink) handleMessage(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("⚠️  Malformed frame from host: %v", err)
		l.bus.Publish(Event{Kind: EventSyncError, Role: RoleClient, Message: err.Error()})
		return
	}

	switch env.Type {
	case MsgSyncSnapshot:
		var snap SnapshotPayload
		if err := json.Unmarshal(env.Payload, &snap); err != nil {
			log.Printf("⚠️  Discarding malformed snapshot, keeping last-known-good state: %v", err)
			l.bus.Publish(Event{Kind: EventSyncError, Role: RoleClient, Message: err.Error()})
			return
		}
		l.source.ReplaceAll(snap.Batches, snap.ActiveBatchID)
		log.Printf("🔄 Snapshot applied: %d batches, active %q", len(snap.Batches), snap.ActiveBatchID)
		l.bus.Publish(Event{Kind: EventSnapshotApplied, Role: RoleClient})

	case MsgScanBroadcast:
		var ev models.ScanEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			log.Printf("⚠️  Malformed scan broadcast: %v", err)
			l.bus.Publish(Event{Kind: EventSyncError, Role: RoleClient, Message: err.Error()})
			return
		}
		if err := l.source.ApplyRemoteScan(ev); err != nil {
			log.Printf("⚠️  Broadcast for unknown batch %s ignored", ev.BatchID)
			return
		}
		l.bus.Publish(Event{Kind: EventScanApplied, Role: RoleClient, Scan: &ev})

	default:
		log.Printf("⚠️  Unknown message type %q from host", env.Type)
	}
}

// writePump drains the send channel and keeps the ping contract.
func (l *hostLink) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case message, ok := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				l.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
