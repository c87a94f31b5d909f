package printer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/darrien-wang/QuickLabel/internal/models"
)

func sampleRecord() models.Record {
	now := time.Now().UTC()
	return models.Record{
		BatchID: "b1",
		ID:      "TRK12345",
		Fields: datatypes.JSONMap{
			"tracking":  "TRK12345",
			"carrier":   "DHL",
			"recipient": "Müller GmbH",
			"zip":       "10115",
		},
		Scanned:   true,
		ScannedAt: &now,
	}
}

func TestGenerator_RenderLabel(t *testing.T) {
	g := NewGenerator()
	doc, err := g.RenderLabel(sampleRecord(), "tuesday-outbound")
	require.NoError(t, err)
	require.NotEmpty(t, doc)
	assert.Equal(t, "%PDF", string(doc[:4]), "label must be a PDF document")
}

func TestGenerator_RenderLabelSparseRecord(t *testing.T) {
	g := NewGenerator()
	rec := models.Record{BatchID: "b1", ID: "TRK1", Fields: datatypes.JSONMap{"tracking": "TRK1"}}
	doc, err := g.RenderLabel(rec, "")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(doc[:4]))
}

func TestSpoolPrinter_WritesDocument(t *testing.T) {
	dir := t.TempDir()
	p := NewSpoolPrinter(dir)

	err := p.Print(context.Background(), []byte("%PDF-fake"), "task-1", "zebra-1")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "zebra-1", "task-1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "zebra-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSpoolPrinter_RejectsEmptyPrinter(t *testing.T) {
	p := NewSpoolPrinter(t.TempDir())
	err := p.Print(context.Background(), []byte("%PDF"), "task-1", "")
	require.Error(t, err)
}

func TestSpoolPrinter_HonorsCancelledContext(t *testing.T) {
	p := NewSpoolPrinter(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Print(ctx, []byte("%PDF"), "task-1", "zebra-1")
	require.ErrorIs(t, err, context.Canceled)
}
