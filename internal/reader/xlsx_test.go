package reader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeXLSX(t *testing.T) string {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Events")
	require.NoError(t, err)

	for _, cells := range [][]string{
		{"titel", "datum", "ort"},
		{"Stadtfest", "2024-05-01", "Marktplatz"},
		{"Konzert", "2024-06-12", "Stadthalle"},
		{"Lesung", "2024-07-03", "Bibliothek"},
	} {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}

	empty, err := f.AddSheet("Leer")
	require.NoError(t, err)
	_ = empty

	path := filepath.Join(t.TempDir(), "events.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestXLSXReader_Sheets(t *testing.T) {
	path := writeXLSX(t)
	sheets, err := NewXLSX().Sheets(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "Events", sheets[0].Name)
	assert.Equal(t, 3, sheets[0].Rows)
	assert.Equal(t, "Leer", sheets[1].Name)
	assert.Equal(t, 0, sheets[1].Rows)
}

func TestXLSXReader_HeaderAndRead(t *testing.T) {
	path := writeXLSX(t)
	r := NewXLSX()
	ctx := context.Background()

	header, err := r.Header(ctx, path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"titel", "datum", "ort"}, header)

	rows, err := r.Read(ctx, path, 0, 0, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, "Stadtfest", rows[0].Cell(0))

	// Short window at the tail.
	rows, err = r.Read(ctx, path, 0, 2, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Index)
	assert.Equal(t, "Lesung", rows[0].Cell(0))

	// Out-of-range sheet.
	_, err = r.Read(ctx, path, 5, 0, 2)
	assert.Error(t, err)

	// Empty sheet has no header.
	_, err = r.Header(ctx, path, 1)
	assert.Error(t, err)
}
