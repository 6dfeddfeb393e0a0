package reader

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/import-engine/internal/model"
)

// XLSXReader reads windows of rows from a spreadsheet. Row 0 of each sheet
// is treated as the header.
type XLSXReader struct{}

// NewXLSX creates an XLSXReader.
func NewXLSX() *XLSXReader {
	return &XLSXReader{}
}

// Sheets enumerates the workbook's sheets with their data-row counts.
func (r *XLSXReader) Sheets(_ context.Context, handle string) ([]SheetInfo, error) {
	f, err := xlsx.OpenFile(handle)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	infos := make([]SheetInfo, len(f.Sheets))
	for i, sheet := range f.Sheets {
		rows := len(sheet.Rows) - 1
		if rows < 0 {
			rows = 0
		}
		infos[i] = SheetInfo{Index: i, Name: sheet.Name, Rows: rows}
	}
	return infos, nil
}

// Header returns the first row of the sheet.
func (r *XLSXReader) Header(_ context.Context, handle string, sheetIndex int) ([]string, error) {
	sheet, err := openSheet(handle, sheetIndex)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("xlsx: sheet %d is empty", sheetIndex)
	}
	return rowToStrings(sheet.Rows[0]), nil
}

// Read returns up to limit data rows starting at the 0-based data-row offset
// startRow. Fewer than limit rows means the sheet is exhausted.
func (r *XLSXReader) Read(ctx context.Context, handle string, sheetIndex, startRow, limit int) ([]model.Row, error) {
	sheet, err := openSheet(handle, sheetIndex)
	if err != nil {
		return nil, err
	}

	// Sheet row 0 is the header; data row n lives at sheet row n+1.
	first := startRow + 1
	if first >= len(sheet.Rows) {
		return nil, nil
	}

	rows := make([]model.Row, 0, limit)
	for i := first; i < len(sheet.Rows) && len(rows) < limit; i++ {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		rows = append(rows, model.Row{
			Index: i - 1,
			Cells: rowToStrings(sheet.Rows[i]),
		})
	}
	return rows, nil
}

func openSheet(handle string, sheetIndex int) (*xlsx.Sheet, error) {
	f, err := xlsx.OpenFile(handle)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if sheetIndex < 0 || sheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", sheetIndex, len(f.Sheets))
	}
	return f.Sheets[sheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
