package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/darrien-wang/QuickLabel/internal/batch"
	"github.com/darrien-wang/QuickLabel/internal/config"
	"github.com/darrien-wang/QuickLabel/internal/models"
	"github.com/darrien-wang/QuickLabel/internal/printqueue"
	"github.com/darrien-wang/QuickLabel/internal/services/scanning"
	"github.com/darrien-wang/QuickLabel/internal/sync"
)

type noopRenderer struct{}

func (noopRenderer) RenderLabel(models.Record, string) ([]byte, error) { return []byte("%PDF"), nil }

type noopPrinter struct{}

func (noopPrinter) Print(context.Context, []byte, string, string) error { return nil }

// newTestRouter wires a full scan pipeline with no database behind it.
func newTestRouter(t *testing.T, seed bool) (*Router, *batch.Store, *sync.Session) {
	t.Helper()
	store := batch.NewStore()
	if seed {
		store.Put(models.Batch{
			ID:               "b1",
			Name:             "tuesday-outbound",
			PrimaryKeyColumn: "tracking",
			Records: []models.Record{
				{BatchID: "b1", ID: "TRK001", Fields: datatypes.JSONMap{"tracking": "TRK001"}},
				{BatchID: "b1", ID: "TRK002", Fields: datatypes.JSONMap{"tracking": "TRK002"}},
			},
		})
		require.NoError(t, store.SetActive("b1"))
	}

	session := sync.NewSession(config.SyncConfig{
		Port:        0,
		OriginLabel: "test-station",
		DialTimeout: time.Second,
	}, store)
	t.Cleanup(session.Close)

	queue := printqueue.NewProcessor(noopRenderer{}, noopPrinter{}, config.PrintConfig{
		PrinterID:    "test",
		SettleDelay:  time.Millisecond,
		PrintTimeout: time.Second,
	})
	queue.Start()
	t.Cleanup(queue.Stop)

	scanner := scanning.NewService(store, session, queue)
	scanner.Start()
	t.Cleanup(scanner.Stop)

	return NewRouter(store, nil, scanner, session, queue), store, session
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func TestHealthCheck(t *testing.T) {
	r, _, _ := newTestRouter(t, false)
	rec := doJSON(t, r, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetStatus(t *testing.T) {
	r, _, _ := newTestRouter(t, true)
	rec := doJSON(t, r, "GET", "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "b1", body["activeBatchId"])
	assert.Equal(t, float64(2), body["total"])
	assert.NotEmpty(t, body["uptime"])
}

func TestHandleScan_Hit(t *testing.T) {
	r, store, _ := newTestRouter(t, true)

	rec := doJSON(t, r, "POST", "/api/scan", ScanRequest{Barcode: "TRK001"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.ScanResult
	decode(t, rec, &res)
	assert.Equal(t, "scanned", res.Message)
	assert.True(t, res.WillPrint)

	stored, _ := store.Get("b1", "TRK001")
	assert.True(t, stored.Scanned)
}

func TestHandleScan_MissAndRescan(t *testing.T) {
	r, _, _ := newTestRouter(t, true)

	rec := doJSON(t, r, "POST", "/api/scan", ScanRequest{Barcode: "NOPE"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.ScanResult
	decode(t, rec, &res)
	assert.Equal(t, "not found", res.Message)

	doJSON(t, r, "POST", "/api/scan", ScanRequest{Barcode: "TRK001"})
	rec = doJSON(t, r, "POST", "/api/scan", ScanRequest{Barcode: "TRK001"})
	decode(t, rec, &res)
	assert.Equal(t, "already scanned", res.Message)
	assert.False(t, res.WillPrint)
}

func TestHandleScan_NoActiveBatch(t *testing.T) {
	r, _, _ := newTestRouter(t, false)
	rec := doJSON(t, r, "POST", "/api/scan", ScanRequest{Barcode: "TRK001"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleScan_EmptyBarcode(t *testing.T) {
	r, _, _ := newTestRouter(t, true)
	rec := doJSON(t, r, "POST", "/api/scan", ScanRequest{Barcode: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportBatch(t *testing.T) {
	r, store, _ := newTestRouter(t, false)

	csv := "tracking,carrier\nTRK100,DHL\nTRK101,UPS\n"
	req := httptest.NewRequest("POST", "/api/batches/import?name=friday&pk=tracking", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sum batchSummary
	decode(t, rec, &sum)
	assert.Equal(t, "friday", sum.Name)
	assert.Equal(t, 2, sum.Records)
	assert.True(t, sum.Active, "first import becomes the active batch")
	assert.Equal(t, sum.ID, store.ActiveID())
}

func TestImportBatch_BadCSV(t *testing.T) {
	r, _, _ := newTestRouter(t, false)
	req := httptest.NewRequest("POST", "/api/batches/import?name=x&pk=missing", strings.NewReader("tracking\nTRK1\n"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndActivateBatches(t *testing.T) {
	r, store, _ := newTestRouter(t, true)
	store.Put(models.Batch{
		ID: "b2", Name: "returns", PrimaryKeyColumn: "tracking",
		Records: []models.Record{{BatchID: "b2", ID: "RET1", Fields: datatypes.JSONMap{"tracking": "RET1"}}},
	})

	rec := doJSON(t, r, "GET", "/api/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []batchSummary
	decode(t, rec, &list)
	require.Len(t, list, 2)

	rec = doJSON(t, r, "PUT", "/api/batches/b2/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "b2", store.ActiveID())

	rec = doJSON(t, r, "PUT", "/api/batches/nope/activate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetActiveBatch(t *testing.T) {
	r, _, _ := newTestRouter(t, true)
	rec := doJSON(t, r, "GET", "/api/batches/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var b models.Batch
	decode(t, rec, &b)
	assert.Equal(t, "b1", b.ID)
	assert.Len(t, b.Records, 2)
}

func TestGetActiveBatch_None(t *testing.T) {
	r, _, _ := newTestRouter(t, false)
	rec := doJSON(t, r, "GET", "/api/batches/active", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncLifecycle(t *testing.T) {
	r, _, _ := newTestRouter(t, true)

	rec := doJSON(t, r, "GET", "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st sync.Status
	decode(t, rec, &st)
	assert.Equal(t, sync.RoleStandalone, st.Role)

	rec = doJSON(t, r, "POST", "/api/sync/host/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &st)
	assert.Equal(t, sync.RoleHost, st.Role)
	assert.NotEmpty(t, st.LocalAddress)

	// Hosts cannot dial out.
	rec = doJSON(t, r, "POST", "/api/sync/connect", ConnectRequest{Address: st.LocalAddress})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, r, "POST", "/api/sync/host/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &st)
	assert.Equal(t, sync.RoleStandalone, st.Role)
}

func TestConnect_InvalidAddress(t *testing.T) {
	r, _, _ := newTestRouter(t, true)
	rec := doJSON(t, r, "POST", "/api/sync/connect", ConnectRequest{Address: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnect_Unreachable(t *testing.T) {
	r, _, _ := newTestRouter(t, true)
	rec := doJSON(t, r, "POST", "/api/sync/connect", ConnectRequest{Address: "127.0.0.1:1"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRefresh_NotConnected(t *testing.T) {
	r, _, _ := newTestRouter(t, true)
	rec := doJSON(t, r, "POST", "/api/sync/refresh", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClientScanThroughAPI(t *testing.T) {
	// Host router with the authoritative store.
	hostRouter, hostStore, _ := newTestRouter(t, true)
	rec := doJSON(t, hostRouter, "POST", "/api/sync/host/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st sync.Status
	decode(t, rec, &st)

	// Client router joins and submits a scan over the wire.
	clientRouter, clientStore, _ := newTestRouter(t, false)
	rec = doJSON(t, clientRouter, "POST", "/api/sync/connect", ConnectRequest{Address: st.LocalAddress})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return clientStore.ActiveID() == "b1"
	}, 5*time.Second, 10*time.Millisecond, "snapshot should arrive after connect")

	rec = doJSON(t, clientRouter, "POST", "/api/scan", ScanRequest{Barcode: "TRK002"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.ScanResult
	decode(t, rec, &res)
	assert.Equal(t, "submitted", res.Resolved)

	require.Eventually(t, func() bool {
		r, ok := hostStore.Get("b1", "TRK002")
		return ok && r.Scanned
	}, 5*time.Second, 10*time.Millisecond, "host should resolve the submitted scan")
}

func TestPrintEndpoints(t *testing.T) {
	r, _, _ := newTestRouter(t, true)

	rec := doJSON(t, r, "PUT", "/api/print/printer", PrinterRequest{PrinterID: "zebra-7"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, "POST", "/api/print/records/TRK001", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.NotEmpty(t, body["taskId"])

	rec = doJSON(t, r, "POST", "/api/print/records/MISSING", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, "GET", "/api/print/queue", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetPrinter_Validation(t *testing.T) {
	r, _, _ := newTestRouter(t, true)
	rec := doJSON(t, r, "PUT", "/api/print/printer", PrinterRequest{PrinterID: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrintRecordInExplicitBatch(t *testing.T) {
	r, store, _ := newTestRouter(t, true)
	store.Put(models.Batch{
		ID: "b2", Name: "returns", PrimaryKeyColumn: "tracking",
		Records: []models.Record{{BatchID: "b2", ID: "RET1", Fields: datatypes.JSONMap{"tracking": "RET1"}}},
	})

	path := fmt.Sprintf("/api/print/records/%s?batch=%s", "RET1", "b2")
	rec := doJSON(t, r, "POST", path, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
