// Package model defines the shared types for the import-processing engine.
package model

import (
	"encoding/json"
	"time"
)

// Stage identifies one phase of the import pipeline.
type Stage string

const (
	StageDetectDataset     Stage = "detect_dataset"
	StageDetectSchema      Stage = "detect_schema"
	StageAnalyzeDuplicates Stage = "analyze_duplicates"
	StageValidateSchema    Stage = "validate_schema"
	StageGeocode           Stage = "geocode"
	StageCreateEvents      Stage = "create_events"
	StageCompleted         Stage = "completed"
	StageFailed            Stage = "failed"
)

// stageOrder is the forward progression of non-terminal stages.
var stageOrder = map[Stage]Stage{
	StageDetectDataset:     StageDetectSchema,
	StageDetectSchema:      StageAnalyzeDuplicates,
	StageAnalyzeDuplicates: StageValidateSchema,
	StageValidateSchema:    StageGeocode,
	StageGeocode:           StageCreateEvents,
	StageCreateEvents:      StageCompleted,
}

// Next returns the stage that follows s. Terminal stages return themselves.
func (s Stage) Next() Stage {
	if next, ok := stageOrder[s]; ok {
		return next
	}
	return s
}

// Terminal reports whether s is a final stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Valid reports whether s is a known stage name.
func (s Stage) Valid() bool {
	if s.Terminal() {
		return true
	}
	_, ok := stageOrder[s]
	return ok
}

// ImportError is one structured error recorded on a job. Row is the absolute
// dataset row index, or -1 when the error is not tied to a single row.
type ImportError struct {
	Stage      Stage     `json:"stage"`
	Batch      int       `json:"batch"`
	Row        int       `json:"row"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// GeoPoint is one resolved coordinate carried between pipeline invocations.
type GeoPoint struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Confidence float64 `json:"confidence"`
}

// Job is one row-dataset being driven through the pipeline. The engine
// mutates it after every batch; creation and deletion belong to the host.
type Job struct {
	ID         string `json:"id"`
	FileHandle string `json:"file_handle"`
	SheetIndex int    `json:"sheet_index"`
	SheetName  string `json:"sheet_name,omitempty"`

	Stage         Stage `json:"stage"`
	Batch         int   `json:"batch"`
	RowsProcessed int   `json:"rows_processed"`
	TotalRows     int   `json:"total_rows"`

	Columns []string `json:"columns,omitempty"`

	// SchemaState is the schema builder's opaque versioned snapshot.
	SchemaState json.RawMessage `json:"schema_state,omitempty"`

	Duplicates RowSet `json:"duplicate_row_numbers,omitempty"`

	// DupHashes maps content hashes seen so far to the first row index that
	// produced them. Populated batch by batch during duplicate analysis and
	// cleared once the stage completes.
	DupHashes map[string]int `json:"dup_hashes,omitempty"`

	// Geocoded holds geocoder results keyed by row index, carried from the
	// geocode stage into event creation and cleared when events are built.
	Geocoded map[int]GeoPoint `json:"geocoded,omitempty"`

	Mappings  map[Role]Mapping `json:"detected_field_mappings,omitempty"`
	Overrides map[Role]Mapping `json:"field_mapping_overrides,omitempty"`

	// SwapAutoFix records the dataset-level decision to repair swapped
	// latitude/longitude pairs, made before the geocode stage commits to it.
	SwapAutoFix bool `json:"swap_auto_fix"`

	GeocodeOK     int `json:"geocode_ok"`
	GeocodeFailed int `json:"geocode_failed"`
	EventsCreated int `json:"events_created"`

	Errors []ImportError `json:"errors,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastRunAt time.Time `json:"last_run_at"`
}

// RecordError appends a structured error entry for the job's current stage.
func (j *Job) RecordError(row int, msg string) {
	j.Errors = append(j.Errors, ImportError{
		Stage:      j.Stage,
		Batch:      j.Batch,
		Row:        row,
		Message:    msg,
		OccurredAt: time.Now().UTC(),
	})
}

// ClearBatchErrors drops error entries recorded by an earlier attempt at the
// given stage and batch. Task delivery is at-least-once, so a redelivered
// batch regenerates its row errors instead of appending them twice.
func (j *Job) ClearBatchErrors(stage Stage, batch int) {
	kept := j.Errors[:0]
	for _, e := range j.Errors {
		if e.Stage == stage && e.Batch == batch {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		j.Errors = nil
		return
	}
	j.Errors = kept
}

// EffectiveMappings resolves detected mappings against overrides. An override
// for a logical role always wins over the detected assignment for that role.
func (j *Job) EffectiveMappings() map[Role]Mapping {
	out := make(map[Role]Mapping, len(j.Mappings)+len(j.Overrides))
	for role, m := range j.Mappings {
		out[role] = m
	}
	for role, m := range j.Overrides {
		m.Source = MappingSourceOverride
		out[role] = m
	}
	return out
}
