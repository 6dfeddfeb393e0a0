package model

import (
	"encoding/json"
	"sort"
)

// RowSet is a set of absolute dataset row indices. It serializes as a sorted
// JSON array so persisted job records stay diffable.
type RowSet map[int]struct{}

// NewRowSet builds a RowSet from the given indices.
func NewRowSet(indices ...int) RowSet {
	s := make(RowSet, len(indices))
	for _, i := range indices {
		s[i] = struct{}{}
	}
	return s
}

// Add inserts a row index.
func (s RowSet) Add(index int) {
	s[index] = struct{}{}
}

// Contains reports whether the row index is in the set.
func (s RowSet) Contains(index int) bool {
	_, ok := s[index]
	return ok
}

// Merge unions other into s. Internal (content-hash) and external
// (host-provided) duplicate sources both contribute through this rule: a row
// flagged by either source is skipped downstream.
func (s RowSet) Merge(other RowSet) {
	for i := range other {
		s[i] = struct{}{}
	}
}

// Sorted returns the indices in ascending order.
func (s RowSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s RowSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON array of indices.
func (s *RowSet) UnmarshalJSON(data []byte) error {
	var indices []int
	if err := json.Unmarshal(data, &indices); err != nil {
		return err
	}
	*s = NewRowSet(indices...)
	return nil
}
