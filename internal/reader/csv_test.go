package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleCSV = `title,date,lat,lon
Spring Fair,2024-05-01,40.7128,-74.0060
Night Run,2024-06-12,40.6892,-74.0445
Art Walk,2024-07-03,40.7306,-73.9352
Book Club,2024-08-20,40.7580,-73.9855
Jazz Night,2024-09-14,40.7061,-74.0087
`

func TestCSVReader_Header(t *testing.T) {
	path := writeCSV(t, sampleCSV)
	r := NewCSV(CSVOptions{})

	header, err := r.Header(context.Background(), path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "date", "lat", "lon"}, header)

	_, err = r.Header(context.Background(), path, 1)
	assert.Error(t, err)
}

func TestCSVReader_ReadWindows(t *testing.T) {
	path := writeCSV(t, sampleCSV)
	r := NewCSV(CSVOptions{})
	ctx := context.Background()

	// Full first window.
	rows, err := r.Read(ctx, path, 0, 0, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Index)
	assert.Equal(t, "Spring Fair", rows[0].Cell(0))
	assert.Equal(t, 1, rows[1].Index)

	// Middle window preserves absolute indices.
	rows, err = r.Read(ctx, path, 0, 2, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Index)
	assert.Equal(t, "Art Walk", rows[0].Cell(0))

	// Final short window signals exhaustion.
	rows, err = r.Read(ctx, path, 0, 4, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Jazz Night", rows[0].Cell(0))

	// Past the end.
	rows, err = r.Read(ctx, path, 0, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCSVReader_TrimSpace(t *testing.T) {
	path := writeCSV(t, "title,city\n  Spring Fair ,  Berlin \n")
	r := NewCSV(CSVOptions{TrimSpace: true})

	rows, err := r.Read(context.Background(), path, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Spring Fair", rows[0].Cell(0))
	assert.Equal(t, "Berlin", rows[0].Cell(1))
}

func TestCSVReader_Sheets(t *testing.T) {
	path := writeCSV(t, sampleCSV)
	sheets, err := NewCSV(CSVOptions{}).Sheets(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, "events", sheets[0].Name)
	assert.Equal(t, -1, sheets[0].Rows)
}

func TestForFile(t *testing.T) {
	r, err := ForFile("upload.csv")
	require.NoError(t, err)
	assert.IsType(t, &CSVReader{}, r)

	r, err = ForFile("upload.XLSX")
	require.NoError(t, err)
	assert.IsType(t, &XLSXReader{}, r)

	_, err = ForFile("upload.pdf")
	assert.Error(t, err)
}
