package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/darrien-wang/QuickLabel/internal/models"
)

// ImportCSV parses a CSV payload into a new batch. The first row is the
// header and defines field names; pkColumn must name one of the headers
// and its values become record ids. Duplicate or empty key values fail
// the whole import — a batch with ambiguous tracking numbers cannot be
// scanned against.
func ImportCSV(name, pkColumn string, r io.Reader) (*models.Batch, error) {
	name = strings.TrimSpace(name)
	pkColumn = strings.TrimSpace(pkColumn)
	if name == "" {
		return nil, fmt.Errorf("batch name is required")
	}
	if pkColumn == "" {
		return nil, fmt.Errorf("primary key column is required")
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Spreadsheet exports are often ragged; short rows pad with "".
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	pkIdx := -1
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == pkColumn {
			pkIdx = i
		}
	}
	if pkIdx < 0 {
		return nil, fmt.Errorf("primary key column %q not found in header", pkColumn)
	}

	b := &models.Batch{
		ID:               uuid.New().String(),
		Name:             name,
		PrimaryKeyColumn: pkColumn,
		CreatedAt:        time.Now().UTC(),
	}

	seen := make(map[string]int)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line+1, err)
		}
		line++

		key := ""
		fields := make(datatypes.JSONMap, len(header))
		for i, h := range header {
			val := ""
			if i < len(row) {
				val = strings.TrimSpace(row[i])
			}
			fields[h] = val
			if i == pkIdx {
				key = val
			}
		}
		if key == "" {
			return nil, fmt.Errorf("row %d: empty value in primary key column %q", line, pkColumn)
		}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("row %d: duplicate primary key %q (first seen at row %d)", line, key, prev)
		}
		seen[key] = line

		b.Records = append(b.Records, models.Record{
			BatchID: b.ID,
			ID:      key,
			Fields:  fields,
		})
	}

	if len(b.Records) == 0 {
		return nil, fmt.Errorf("no data rows in CSV payload")
	}
	return b, nil
}
