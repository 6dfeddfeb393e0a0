package schema

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// StateVersion tags snapshots so a restore can detect and migrate blobs
// written by an older builder instead of silently misinterpreting them.
const StateVersion = 2

// State is the serializable snapshot of a Builder. Restoring a state must
// reproduce identical subsequent behavior to never having been interrupted.
type State struct {
	Version   int                    `json:"version"`
	Rows      int64                  `json:"rows"`
	Batches   int                    `json:"batches"`
	Order     []string               `json:"order"`
	Fields    map[string]*FieldStats `json:"fields"`
	Finalized bool                   `json:"finalized"`
	Enums     map[string][]string    `json:"enums,omitempty"`
}

// Snapshot serializes the builder's full state.
func (b *Builder) Snapshot() (json.RawMessage, error) {
	st := State{
		Version:   StateVersion,
		Rows:      b.rows,
		Batches:   b.batches,
		Order:     b.order,
		Fields:    b.fields,
		Finalized: b.finalized,
		Enums:     b.enums,
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, eris.Wrap(err, "schema: marshal snapshot")
	}
	return data, nil
}

// Restore loads a snapshot previously produced by Snapshot. Older snapshot
// versions are migrated; versions newer than this builder are rejected.
func (b *Builder) Restore(data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return eris.Wrap(err, "schema: unmarshal snapshot")
	}

	switch {
	case st.Version == StateVersion:
	case st.Version < StateVersion:
		migrateState(&st)
	default:
		return eris.Errorf("schema: snapshot version %d is newer than supported %d", st.Version, StateVersion)
	}

	b.rows = st.Rows
	b.batches = st.Batches
	b.order = st.Order
	b.fields = st.Fields
	b.finalized = st.Finalized
	b.enums = st.Enums
	if b.fields == nil {
		b.fields = make(map[string]*FieldStats)
	}
	for _, f := range b.fields {
		f.rebuildIndex()
	}
	return nil
}

// migrateState upgrades older snapshots in place. Version 1 predates the
// per-field column index; recover it from the order slice.
func migrateState(st *State) {
	if st.Version <= 1 {
		for i, name := range st.Order {
			if f, ok := st.Fields[name]; ok {
				f.Index = i
			}
		}
	}
	st.Version = StateVersion
}
