package model

import (
	"encoding/json"
	"time"
)

// Row is one dataset row with its absolute index. Cells are positional and
// align with the job's detected columns.
type Row struct {
	Index int      `json:"index"`
	Cells []string `json:"cells"`
}

// Cell returns the cell at column position i, or "" when the row is ragged.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// Event is one validated, geolocated record materialized from a dataset row.
type Event struct {
	ID       string `json:"id"`
	JobID    string `json:"job_id"`
	RowIndex int    `json:"row_index"`

	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Date        *time.Time `json:"date,omitempty"`

	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Confidence float64  `json:"confidence"`

	// Geometry is the point as GeoJSON when coordinates are present.
	Geometry json.RawMessage `json:"geometry,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
