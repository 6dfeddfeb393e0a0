// Package reader provides batch-windowed access to tabular files. The
// pipeline re-reads at explicit offsets between invocations, so readers are
// stateless: every call opens the handle, seeks, and returns one window.
package reader

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/import-engine/internal/model"
)

// SheetInfo describes one sheet discovered inside a file.
type SheetInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Rows  int    `json:"rows"` // data rows, header excluded; -1 when unknown
}

// BatchReader reads slices of rows from an uploaded file. Read returns fewer
// than limit rows exactly when the dataset is exhausted. Row indices are
// absolute 0-based data-row positions, stable across invocations.
type BatchReader interface {
	Sheets(ctx context.Context, handle string) ([]SheetInfo, error)
	Header(ctx context.Context, handle string, sheetIndex int) ([]string, error)
	Read(ctx context.Context, handle string, sheetIndex, startRow, limit int) ([]model.Row, error)
}

// ForFile selects a reader implementation from the handle's extension.
func ForFile(handle string) (BatchReader, error) {
	switch strings.ToLower(filepath.Ext(handle)) {
	case ".csv", ".tsv", ".txt":
		opts := CSVOptions{}
		if strings.EqualFold(filepath.Ext(handle), ".tsv") {
			opts.Delimiter = '\t'
		}
		return NewCSV(opts), nil
	case ".xlsx":
		return NewXLSX(), nil
	default:
		return nil, eris.Errorf("reader: unsupported file type %q", filepath.Ext(handle))
	}
}
