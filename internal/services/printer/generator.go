package printer

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/darrien-wang/QuickLabel/internal/models"
)

// A6 landscape label, millimetres.
const (
	labelWidth  = 148.0
	labelHeight = 105.0

	// How many record fields fit on the label before truncation.
	maxFieldLines = 6
)

// Generator renders one PDF label per print task. It implements the
// print queue's Renderer.
type Generator struct{}

// NewGenerator creates a label generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// RenderLabel creates a single-page PDF for a scanned record: QR code
// of the tracking number on the left, tracking number and field lines
// on the right, batch name and scan timestamp in the footer.
func (g *Generator) RenderLabel(rec models.Record, batchName string) ([]byte, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "L",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: labelHeight, Ht: labelWidth},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// QR content is the raw tracking number so any scanner in the
	// chain can re-read the label.
	qrPng, err := qrcode.Encode(rec.ID, qrcode.Medium, 512)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR for %s: %w", rec.ID, err)
	}

	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	_ = pdf.RegisterImageOptionsReader("qr", imgOptions, bytes.NewReader(qrPng))

	qrSize := labelHeight * 0.55
	pdf.ImageOptions("qr", 6, 8, qrSize, qrSize, false, imgOptions, 0, "")

	// Tracking number, big, right of the QR
	textX := 6 + qrSize + 6
	pdf.SetFont("Arial", "B", 18)
	pdf.SetXY(textX, 10)
	pdf.CellFormat(labelWidth-textX-6, 9, rec.ID, "", 0, "L", false, 0, "")

	// Field lines in stable (sorted) order
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pdf.SetFont("Arial", "", 9)
	y := 24.0
	lines := 0
	for _, k := range keys {
		if lines >= maxFieldLines {
			break
		}
		v := rec.Field(k)
		if v == "" || v == rec.ID {
			continue
		}
		pdf.SetXY(textX, y)
		pdf.CellFormat(labelWidth-textX-6, 5, fmt.Sprintf("%s: %s", k, v), "", 0, "L", false, 0, "")
		y += 5.5
		lines++
	}

	// Footer: batch name and scan time
	pdf.SetFont("Arial", "I", 8)
	pdf.SetXY(6, labelHeight-10)
	footer := batchName
	if rec.ScannedAt != nil {
		footer = fmt.Sprintf("%s - scanned %s", batchName, rec.ScannedAt.Format("2006-01-02 15:04:05"))
	}
	pdf.CellFormat(labelWidth-12, 5, footer, "", 0, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render label PDF: %w", err)
	}
	return buf.Bytes(), nil
}
