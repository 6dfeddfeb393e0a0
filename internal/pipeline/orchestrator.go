// Package pipeline drives import jobs through their stages one batch at a
// time. Every invocation loads the job, runs exactly one unit of work for the
// current stage, persists the mutated job, and schedules the follow-up task.
// Crash recovery falls out of that shape: re-running the same invocation
// replays an idempotent batch.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/import-engine/internal/config"
	"github.com/sells-group/import-engine/internal/model"
	"github.com/sells-group/import-engine/internal/reader"
	"github.com/sells-group/import-engine/internal/store"
	"github.com/sells-group/import-engine/pkg/geocode"
)

// Queue schedules the follow-up invocation after a batch completes. The
// in-process worker loops instead of queueing, so a no-op implementation is
// valid there.
type Queue interface {
	Enqueue(ctx context.Context, task, jobID string, batch int) error
}

// QueueFunc adapts a function to the Queue interface.
type QueueFunc func(ctx context.Context, task, jobID string, batch int) error

// Enqueue calls f.
func (f QueueFunc) Enqueue(ctx context.Context, task, jobID string, batch int) error {
	return f(ctx, task, jobID, batch)
}

func noopQueue(context.Context, string, string, int) error { return nil }

// stageProcessor runs one batch of work for a stage. It mutates the job in
// place and reports done=true when the stage has finished and the job should
// advance.
type stageProcessor func(ctx context.Context, job *model.Job) (done bool, err error)

// Orchestrator executes pipeline stages against a store, a file reader and a
// geocoder.
type Orchestrator struct {
	cfg       *config.Config
	store     store.Store
	geocoder  geocode.Client
	queue     Queue
	readerFor func(handle string) (reader.BatchReader, error)

	stages map[model.Stage]stageProcessor
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithQueue sets the follow-up task queue.
func WithQueue(q Queue) Option {
	return func(o *Orchestrator) { o.queue = q }
}

// WithReaderFactory overrides file-reader selection. Tests use it to inject
// in-memory datasets.
func WithReaderFactory(fn func(handle string) (reader.BatchReader, error)) Option {
	return func(o *Orchestrator) { o.readerFor = fn }
}

// New creates an Orchestrator.
func New(cfg *config.Config, st store.Store, gc geocode.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		store:     st,
		geocoder:  gc,
		queue:     QueueFunc(noopQueue),
		readerFor: reader.ForFile,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.stages = map[model.Stage]stageProcessor{
		model.StageDetectDataset:     o.detectDataset,
		model.StageDetectSchema:      o.detectSchema,
		model.StageAnalyzeDuplicates: o.analyzeDuplicates,
		model.StageValidateSchema:    o.validateSchema,
		model.StageGeocode:           o.geocodeRows,
		model.StageCreateEvents:      o.createEvents,
	}
	return o
}

// ProcessNext runs one batch of the job's current stage and persists the
// result. Terminal jobs are a no-op. A processor error marks the job failed;
// the error record carries row -1 since it is not tied to a single row.
func (o *Orchestrator) ProcessNext(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load job")
	}

	if job.Stage.Terminal() {
		zap.L().Debug("pipeline: job already terminal",
			zap.String("job_id", job.ID),
			zap.String("stage", string(job.Stage)),
		)
		return nil
	}

	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("stage", string(job.Stage)),
		zap.Int("batch", job.Batch),
	)
	log.Info("pipeline: processing batch")

	job.LastRunAt = time.Now().UTC()

	proc, ok := o.stages[job.Stage]
	if !ok {
		return eris.Errorf("pipeline: no processor for stage %q", job.Stage)
	}

	// A redelivered batch regenerates its row errors; drop the previous
	// attempt's entries so they are not recorded twice.
	job.ClearBatchErrors(job.Stage, job.Batch)

	stage := job.Stage
	done, procErr := proc(ctx, job)
	if procErr != nil {
		job.Stage = model.StageFailed
		job.RecordError(-1, procErr.Error())
		if saveErr := o.store.SaveJob(ctx, job); saveErr != nil {
			log.Error("pipeline: save failed job", zap.Error(saveErr))
		}
		log.Error("pipeline: stage failed", zap.Error(procErr))
		return eris.Wrapf(procErr, "pipeline: stage %s", stage)
	}

	if done {
		job.Stage = job.Stage.Next()
		job.Batch = 0
		log.Info("pipeline: stage complete", zap.String("next_stage", string(job.Stage)))
	} else {
		job.Batch++
	}

	if err := o.store.SaveJob(ctx, job); err != nil {
		return eris.Wrap(err, "pipeline: save job")
	}

	if !job.Stage.Terminal() {
		task := "import:" + string(job.Stage)
		if err := o.queue.Enqueue(ctx, task, job.ID, job.Batch); err != nil {
			return eris.Wrap(err, "pipeline: enqueue next batch")
		}
	}
	return nil
}

// readBatch reads the job's current batch window. exhausted is true when the
// raw window came back short, before duplicate filtering; duplicate rows are
// dropped from the returned slice.
func (o *Orchestrator) readBatch(ctx context.Context, job *model.Job) (rows []model.Row, exhausted bool, err error) {
	r, err := o.readerFor(job.FileHandle)
	if err != nil {
		return nil, false, err
	}
	batchSize := o.cfg.Import.BatchSize
	start := job.Batch * batchSize
	raw, err := r.Read(ctx, job.FileHandle, job.SheetIndex, start, batchSize)
	if err != nil {
		return nil, false, eris.Wrapf(err, "pipeline: read batch %d", job.Batch)
	}
	exhausted = len(raw) < batchSize

	rows = raw[:0:0]
	for _, row := range raw {
		if job.Duplicates.Contains(row.Index) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, exhausted, nil
}

// columnIndex resolves a logical role to its physical column position, or -1
// when the role is unmapped or the column vanished from the header.
func columnIndex(job *model.Job, role model.Role) int {
	m, ok := job.EffectiveMappings()[role]
	if !ok {
		return -1
	}
	for i, col := range job.Columns {
		if col == m.Column {
			return i
		}
	}
	return -1
}
