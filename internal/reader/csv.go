package reader

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/import-engine/internal/model"
)

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// CSVReader reads windows of rows from a CSV file. A CSV file is always a
// single sheet at index 0; the first record is the header.
type CSVReader struct {
	opts CSVOptions
}

// NewCSV creates a CSVReader.
func NewCSV(opts CSVOptions) *CSVReader {
	return &CSVReader{opts: opts}
}

func (r *CSVReader) open(handle string) (*os.File, *csv.Reader, error) {
	f, err := os.Open(handle)
	if err != nil {
		return nil, nil, eris.Wrap(err, "csv: open file")
	}

	cr := csv.NewReader(f)
	if r.opts.Delimiter != 0 {
		cr.Comma = r.opts.Delimiter
	}
	if r.opts.Comment != 0 {
		cr.Comment = r.opts.Comment
	}
	cr.LazyQuotes = r.opts.LazyQuotes
	cr.FieldsPerRecord = -1 // allow variable fields
	cr.ReuseRecord = false
	return f, cr, nil
}

// Sheets reports the single logical sheet. Counting rows would force a full
// scan, so the row count is left unknown.
func (r *CSVReader) Sheets(_ context.Context, handle string) ([]SheetInfo, error) {
	f, err := os.Open(handle)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	_ = f.Close()

	name := strings.TrimSuffix(filepath.Base(handle), filepath.Ext(handle))
	return []SheetInfo{{Index: 0, Name: name, Rows: -1}}, nil
}

// Header returns the first record of the file.
func (r *CSVReader) Header(_ context.Context, handle string, sheetIndex int) ([]string, error) {
	if sheetIndex != 0 {
		return nil, eris.Errorf("csv: sheet index %d out of range", sheetIndex)
	}

	f, cr, err := r.open(handle)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	record, err := cr.Read()
	if err == io.EOF {
		return nil, eris.New("csv: empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	return r.trim(record), nil
}

// Read returns up to limit data rows starting at the 0-based data-row offset
// startRow. Fewer than limit rows means the file is exhausted.
func (r *CSVReader) Read(ctx context.Context, handle string, sheetIndex, startRow, limit int) ([]model.Row, error) {
	if sheetIndex != 0 {
		return nil, eris.Errorf("csv: sheet index %d out of range", sheetIndex)
	}

	f, cr, err := r.open(handle)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Skip header plus rows before the window.
	for skipped := 0; skipped < startRow+1; skipped++ {
		if _, err := cr.Read(); err == io.EOF {
			return nil, nil
		} else if err != nil {
			return nil, eris.Wrapf(err, "csv: skip to row %d", startRow)
		}
	}

	rows := make([]model.Row, 0, limit)
	for len(rows) < limit {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", startRow+len(rows))
		}
		rows = append(rows, model.Row{
			Index: startRow + len(rows),
			Cells: r.trim(record),
		})
	}
	return rows, nil
}

func (r *CSVReader) trim(record []string) []string {
	if !r.opts.TrimSpace {
		return record
	}
	for i, field := range record {
		record[i] = strings.TrimSpace(field)
	}
	return record
}
