package sync

import (
	"encoding/json"
	"fmt"

	"github.com/darrien-wang/QuickLabel/internal/models"
)

// Message types of the replication protocol. The host is a single-writer
// sequencer: submits flow client→host, the host applies them to its own
// store, and only then broadcasts. Clients never mutate canonical state.
const (
	// MsgRequestSync asks the host for a full snapshot. Sent on connect
	// and re-sent after reconnects; never answered incrementally.
	MsgRequestSync = "REQUEST_SYNC"

	// MsgSyncSnapshot carries the full authoritative state to one client.
	MsgSyncSnapshot = "SYNC_SNAPSHOT"

	// MsgScanSubmit reports a locally-read code to the host. The sender
	// does not touch its own cache; it waits for the broadcast.
	MsgScanSubmit = "SCAN_SUBMIT"

	// MsgScanBroadcast informs every client a record was marked scanned.
	// Sent exactly once per record, after the host applied the scan.
	MsgScanBroadcast = "SCAN_BROADCAST"
)

// Envelope is the wire frame for every protocol message.
type Envelope struct {
	Type    string          `json:"type"`
	MsgID   string          `json:"msgId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SnapshotPayload is the body of a SYNC_SNAPSHOT: a full replacement of
// the receiver's local state. Always wins over whatever the client has.
type SnapshotPayload struct {
	Batches       []models.Batch `json:"batches"`
	ActiveBatchID string         `json:"activeBatchId"`
}

// encodeMessage marshals an envelope with the given payload.
func encodeMessage(msgType, msgID string, payload interface{}) ([]byte, error) {
	env := Envelope{Type: msgType, MsgID: msgID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
