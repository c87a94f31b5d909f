package printer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SpoolPrinter delivers rendered labels by dropping them into a
// per-printer spool directory, where the OS print service (or a
// watcher daemon) picks them up. Write errors surface as print
// failures; the queue logs and drops the task without retrying.
type SpoolPrinter struct {
	dir string
}

// NewSpoolPrinter creates a printer spooling into dir.
func NewSpoolPrinter(dir string) *SpoolPrinter {
	return &SpoolPrinter{dir: dir}
}

// Print writes the document to <dir>/<printerID>/<taskID>.pdf.
func (s *SpoolPrinter) Print(ctx context.Context, doc []byte, taskID, printerID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("print cancelled: %w", err)
	}
	if printerID == "" {
		return fmt.Errorf("no printer selected")
	}

	target := filepath.Join(s.dir, printerID)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create spool directory %s: %w", target, err)
	}

	// Write to a temp name first so the print service never sees a
	// half-written PDF.
	tmp := filepath.Join(target, taskID+".pdf.part")
	final := filepath.Join(target, taskID+".pdf")
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return fmt.Errorf("failed to spool label: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize spooled label: %w", err)
	}
	return nil
}
