package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/darrien-wang/QuickLabel/internal/models"
)

func testBatch(id string, trackingNumbers ...string) models.Batch {
	b := models.Batch{
		ID:               id,
		Name:             "Batch " + id,
		PrimaryKeyColumn: "tracking",
	}
	for _, tn := range trackingNumbers {
		b.Records = append(b.Records, models.Record{
			BatchID: id,
			ID:      tn,
			Fields:  datatypes.JSONMap{"tracking": tn, "carrier": "DHL"},
		})
	}
	return b
}

func newActiveStore(t *testing.T, b models.Batch) *Store {
	t.Helper()
	s := NewStore()
	s.Put(b)
	require.NoError(t, s.SetActive(b.ID))
	return s
}

func TestStore_Resolve_FirstHit(t *testing.T) {
	s := newActiveStore(t, testBatch("b1", "TRK100", "TRK200"))

	outcome, err := s.Resolve("TRK100", "station-1")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeHit, outcome.Kind)
	assert.False(t, outcome.IsRescan)
	require.NotNil(t, outcome.Record)
	assert.True(t, outcome.Record.Scanned)
	require.NotNil(t, outcome.Record.ScannedAt)
}

func TestStore_Resolve_Miss(t *testing.T) {
	s := newActiveStore(t, testBatch("b1", "TRK100"))

	outcome, err := s.Resolve("NOPE", "station-1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeMiss, outcome.Kind)
	assert.Nil(t, outcome.Record)
}

func TestStore_Resolve_NoActiveBatch(t *testing.T) {
	s := NewStore()
	_, err := s.Resolve("TRK100", "station-1")
	assert.ErrorIs(t, err, ErrNoBatch)
}

func TestStore_Resolve_Idempotence(t *testing.T) {
	s := newActiveStore(t, testBatch("b1", "TRK100"))

	var events []models.ScanEvent
	dispose := s.OnScanApplied(func(ev models.ScanEvent, _ models.Record) {
		events = append(events, ev)
	})
	defer dispose()

	first, err := s.Resolve("TRK100", "station-1")
	require.NoError(t, err)
	require.False(t, first.IsRescan)
	stamp := *first.Record.ScannedAt

	second, err := s.Resolve("TRK100", "station-2")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeHit, second.Kind)
	assert.True(t, second.IsRescan)
	assert.True(t, stamp.Equal(*second.Record.ScannedAt), "re-scan must not move the timestamp")

	// Exactly one state change, exactly one notification
	require.Len(t, events, 1)
	assert.Equal(t, "TRK100", events[0].TrackingNumber)
	assert.Equal(t, "station-1", events[0].OriginLabel)
	assert.True(t, stamp.Equal(events[0].ScannedAt))
}

func TestStore_OnScanApplied_Disposer(t *testing.T) {
	s := newActiveStore(t, testBatch("b1", "TRK100", "TRK200"))

	calls := 0
	dispose := s.OnScanApplied(func(models.ScanEvent, models.Record) { calls++ })

	_, err := s.Resolve("TRK100", "station-1")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	dispose()
	_, err = s.Resolve("TRK200", "station-1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "disposed subscription must not fire")
}

func TestStore_ReplaceAll_SnapshotSupersedes(t *testing.T) {
	s := newActiveStore(t, testBatch("b1", "A", "B", "C", "D", "E"))

	// A fresh snapshot with fewer records fully replaces the old state
	s.ReplaceAll([]models.Batch{testBatch("b2", "X", "Y", "Z")}, "b2")

	assert.Equal(t, "b2", s.ActiveID())
	all := s.Batches()
	require.Len(t, all, 1)
	assert.Len(t, all[0].Records, 3)

	_, ok := s.Get("b1", "A")
	assert.False(t, ok, "records outside the snapshot must be gone")
}

func TestStore_ReplaceAll_UnknownActiveID(t *testing.T) {
	s := NewStore()
	s.ReplaceAll([]models.Batch{testBatch("b1", "A")}, "missing")
	assert.Empty(t, s.ActiveID())
}

func TestStore_ApplyRemoteScan(t *testing.T) {
	s := newActiveStore(t, testBatch("b1", "TRK100"))

	ev := models.ScanEvent{BatchID: "b1", TrackingNumber: "TRK100", OriginLabel: "station-2"}
	ev.ScannedAt = ev.ScannedAt.UTC()

	require.NoError(t, s.ApplyRemoteScan(ev))
	rec, ok := s.Get("b1", "TRK100")
	require.True(t, ok)
	assert.True(t, rec.Scanned)

	// Same broadcast twice is harmless
	require.NoError(t, s.ApplyRemoteScan(ev))

	// Unknown record inside a known batch: cache is just behind, no error
	ev.TrackingNumber = "TRK999"
	require.NoError(t, s.ApplyRemoteScan(ev))

	// Unknown batch is a real mismatch
	ev.BatchID = "nope"
	assert.ErrorIs(t, s.ApplyRemoteScan(ev), ErrUnknownBatch)
}

func TestStore_Lookup_ReadOnly(t *testing.T) {
	s := newActiveStore(t, testBatch("b1", "TRK100"))

	outcome, err := s.Lookup("TRK100")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeHit, outcome.Kind)
	assert.False(t, outcome.IsRescan)

	// Lookup must not mutate
	rec, ok := s.Get("b1", "TRK100")
	require.True(t, ok)
	assert.False(t, rec.Scanned)

	_, err = s.Resolve("TRK100", "station-1")
	require.NoError(t, err)

	outcome, err = s.Lookup("TRK100")
	require.NoError(t, err)
	assert.True(t, outcome.IsRescan)
}

func TestStore_Stats(t *testing.T) {
	s := newActiveStore(t, testBatch("b1", "A", "B", "C"))

	_, err := s.Resolve("A", "station-1")
	require.NoError(t, err)

	scanned, total := s.Stats()
	assert.Equal(t, 1, scanned)
	assert.Equal(t, 3, total)
}
