package schema

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/import-engine/internal/model"
)

// Config tunes the builder. Zero values fall back to defaults so tests and
// datasets can tune independently.
type Config struct {
	// ReservoirCap bounds the per-field distinct-value reservoir. A field
	// whose reservoir never exceeds the cap is an enum candidate.
	ReservoirCap int

	// SampleCap bounds the per-field raw-value samples kept for language
	// detection and field-mapping heuristics.
	SampleCap int
}

const (
	defaultReservoirCap = 256
	defaultSampleCap    = 8
)

func (c Config) withDefaults() Config {
	if c.ReservoirCap <= 0 {
		c.ReservoirCap = defaultReservoirCap
	}
	if c.SampleCap <= 0 {
		c.SampleCap = defaultSampleCap
	}
	return c
}

// Builder incrementally infers a per-column type/statistics model. It is not
// safe for concurrent use; the orchestrator guarantees one batch at a time.
type Builder struct {
	cfg       Config
	fields    map[string]*FieldStats
	order     []string
	rows      int64
	batches   int
	finalized bool
	enums     map[string][]string
}

// NewBuilder creates an empty builder.
func NewBuilder(cfg Config) *Builder {
	return &Builder{
		cfg:    cfg.withDefaults(),
		fields: make(map[string]*FieldStats),
	}
}

// ProcessBatch folds one batch of rows into the running statistics. Columns
// are the dataset header; cells align positionally.
func (b *Builder) ProcessBatch(columns []string, rows []model.Row) error {
	if b.finalized {
		return eris.New("schema: builder already finalized")
	}

	for i, col := range columns {
		if _, ok := b.fields[col]; !ok {
			b.fields[col] = newFieldStats(col, i)
			b.order = append(b.order, col)
		}
	}

	for _, row := range rows {
		b.rows++
		for i, col := range columns {
			b.fields[col].observe(row.Cell(i), b.cfg.ReservoirCap, b.cfg.SampleCap)
		}
	}
	b.batches++
	return nil
}

// Batches returns how many batches have been folded in, including those
// restored from a snapshot.
func (b *Builder) Batches() int { return b.batches }

// Rows returns the total number of rows observed.
func (b *Builder) Rows() int64 { return b.rows }

// Fields returns the running statistics in column order. The returned slice
// shares the builder's state and must not be mutated.
func (b *Builder) Fields() []*FieldStats {
	out := make([]*FieldStats, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.fields[name])
	}
	return out
}

// Field returns the statistics for one column, or nil.
func (b *Builder) Field(name string) *FieldStats {
	return b.fields[name]
}

// DetectEnumFields freezes the enum verdict: any field whose distinct-value
// reservoir never overflowed its cap becomes a closed enum with that value
// set. Must run after the last batch only, since it is a one-way decision.
func (b *Builder) DetectEnumFields() map[string][]string {
	if b.enums != nil {
		return b.enums
	}
	b.finalized = true
	b.enums = make(map[string][]string)
	for _, name := range b.order {
		f := b.fields[name]
		if f.Overflowed || len(f.Distinct) == 0 {
			continue
		}
		// Pure numeric measures with full cardinality are not enums even
		// when small; require repeats or a boolean/string shape.
		if len(f.Distinct) == f.Count && f.Count > 1 && f.TypeVotes[TypeString] == 0 && f.TypeVotes[TypeBoolean] == 0 {
			continue
		}
		values := make([]string, len(f.Distinct))
		copy(values, f.Distinct)
		b.enums[name] = values
	}
	return b.enums
}

// FieldSchema is the externally visible shape of one inferred column.
type FieldSchema struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Nullable   bool     `json:"nullable"`
	Required   bool     `json:"required"`
	EnumValues []string `json:"enum_values,omitempty"`
}

// Schema derives the visible schema from the running statistics. Before
// DetectEnumFields it returns a provisional view without enum verdicts.
func (b *Builder) Schema() []FieldSchema {
	out := make([]FieldSchema, 0, len(b.order))
	for _, name := range b.order {
		f := b.fields[name]
		fs := FieldSchema{
			Name:     name,
			Type:     dominantType(f),
			Nullable: f.NullCount > 0,
			Required: f.NullCount == 0 && f.Count > 0,
		}
		if b.enums != nil {
			if values, ok := b.enums[name]; ok {
				fs.EnumValues = values
			}
		}
		out = append(out, fs)
	}
	return out
}

// dominantType resolves the type votes for one field. Any string evidence
// widens the field to string; mixed integer/float evidence widens to float.
func dominantType(f *FieldStats) string {
	if f.Count == 0 {
		return TypeString
	}
	if f.TypeVotes[TypeString] > 0 {
		return TypeString
	}
	if f.TypeVotes[TypeFloat] > 0 && f.TypeVotes[TypeInteger] > 0 {
		return TypeFloat
	}

	best, bestVotes := TypeString, 0
	for _, typ := range []string{TypeInteger, TypeFloat, TypeBoolean, TypeDate} {
		if f.TypeVotes[typ] > bestVotes {
			best, bestVotes = typ, f.TypeVotes[typ]
		}
	}
	return best
}

// TextSamples gathers raw string samples across fields, column names
// included, for natural-language detection.
func (b *Builder) TextSamples() []string {
	var out []string
	for _, name := range b.order {
		out = append(out, name)
		out = append(out, b.fields[name].Samples...)
	}
	return out
}
