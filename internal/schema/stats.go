// Package schema infers a field-level type and statistics model from row
// batches too large to hold in memory at once.
package schema

import (
	"strconv"
	"strings"
	"time"
)

// Primitive type names used for per-value type votes.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeBoolean = "boolean"
	TypeDate    = "date"
	TypeNull    = "null"
)

// dateLayouts are tried in order when classifying a cell as a date.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
}

// FieldStats is the running aggregate for one column. Statistics are
// monotonic: type votes and counts only grow until finalization.
type FieldStats struct {
	Name      string         `json:"name"`
	Index     int            `json:"index"`
	TypeVotes map[string]int `json:"type_votes"`
	NullCount int            `json:"null_count"`
	Count     int            `json:"count"`

	MinNumber *float64 `json:"min_number,omitempty"`
	MaxNumber *float64 `json:"max_number,omitempty"`
	MinDate   *string  `json:"min_date,omitempty"`
	MaxDate   *string  `json:"max_date,omitempty"`

	// Distinct is a bounded reservoir of observed values, used for enum
	// detection after the last batch. Overflowed is latched once the cap is
	// exceeded and the field can no longer be a closed enum.
	Distinct   []string `json:"distinct,omitempty"`
	Overflowed bool     `json:"overflowed,omitempty"`

	// Samples holds a few raw values for language and mapping heuristics.
	Samples []string `json:"samples,omitempty"`

	distinctSet map[string]struct{}
}

func newFieldStats(name string, index int) *FieldStats {
	return &FieldStats{
		Name:        name,
		Index:       index,
		TypeVotes:   make(map[string]int),
		distinctSet: make(map[string]struct{}),
	}
}

// rebuildIndex restores the in-memory distinct set after a snapshot restore.
func (f *FieldStats) rebuildIndex() {
	f.distinctSet = make(map[string]struct{}, len(f.Distinct))
	for _, v := range f.Distinct {
		f.distinctSet[v] = struct{}{}
	}
	if f.TypeVotes == nil {
		f.TypeVotes = make(map[string]int)
	}
}

// observe folds one cell value into the running statistics.
func (f *FieldStats) observe(value string, reservoirCap, sampleCap int) {
	v := strings.TrimSpace(value)
	typ, num, date := inferType(v)
	f.TypeVotes[typ]++

	if typ == TypeNull {
		f.NullCount++
		return
	}
	f.Count++

	switch typ {
	case TypeInteger, TypeFloat:
		if f.MinNumber == nil || num < *f.MinNumber {
			n := num
			f.MinNumber = &n
		}
		if f.MaxNumber == nil || num > *f.MaxNumber {
			n := num
			f.MaxNumber = &n
		}
	case TypeDate:
		iso := date.UTC().Format(time.RFC3339)
		if f.MinDate == nil || iso < *f.MinDate {
			d := iso
			f.MinDate = &d
		}
		if f.MaxDate == nil || iso > *f.MaxDate {
			d := iso
			f.MaxDate = &d
		}
	}

	if !f.Overflowed {
		if _, seen := f.distinctSet[v]; !seen {
			if len(f.Distinct) >= reservoirCap {
				f.Overflowed = true
			} else {
				f.distinctSet[v] = struct{}{}
				f.Distinct = append(f.Distinct, v)
			}
		}
	}

	if typ == TypeString && len(f.Samples) < sampleCap {
		f.Samples = append(f.Samples, v)
	}
}

// inferType classifies a single trimmed cell value. The numeric result is
// set for integer/float votes, the time result for date votes.
func inferType(v string) (string, float64, time.Time) {
	if v == "" {
		return TypeNull, 0, time.Time{}
	}

	switch strings.ToLower(v) {
	case "true", "false", "yes", "no":
		return TypeBoolean, 0, time.Time{}
	}

	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return TypeInteger, float64(n), time.Time{}
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return TypeFloat, n, time.Time{}
	}

	if t, ok := ParseDate(v); ok {
		return TypeDate, 0, t
	}

	return TypeString, 0, time.Time{}
}

// ParseDate parses a cell value against the known date layouts.
func ParseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
