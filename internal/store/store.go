// Package store persists import jobs and their materialized events.
package store

import (
	"context"
	"time"

	"github.com/sells-group/import-engine/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Stage  model.Stage `json:"stage,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// Store defines the persistence interface for the import pipeline. Job
// state is saved after every batch so that a crashed invocation resumes
// from the last persisted batch number.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, fileHandle string, sheetIndex int) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	SaveJob(ctx context.Context, job *model.Job) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// StuckJobs returns non-terminal jobs whose last_run_at predates cutoff.
	StuckJobs(ctx context.Context, cutoff time.Time) ([]model.Job, error)

	// Events. Inserts are keyed on (job_id, row_index) so replaying a
	// batch overwrites rather than duplicates.
	InsertEvents(ctx context.Context, events []model.Event) (int, error)
	CountEvents(ctx context.Context, jobID string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
