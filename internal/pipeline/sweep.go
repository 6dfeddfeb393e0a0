package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/import-engine/internal/model"
)

// SweepStuck fails every non-terminal job whose last run is older than
// threshold. Queue-based invocation can lose tasks; the sweeper is the
// backstop that keeps abandoned jobs from sitting in a live stage forever.
// Returns the number of jobs failed. Safe to run repeatedly.
func (o *Orchestrator) SweepStuck(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	jobs, err := o.store.StuckJobs(ctx, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list stuck jobs")
	}

	swept := 0
	for i := range jobs {
		job := &jobs[i]
		stalled := time.Since(job.LastRunAt).Round(time.Minute)
		job.RecordError(-1, fmt.Sprintf("sweep: job stuck in stage %s for %s", job.Stage, stalled))
		job.Stage = model.StageFailed

		if err := o.store.SaveJob(ctx, job); err != nil {
			zap.L().Error("pipeline: sweep save failed",
				zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		swept++
		zap.L().Warn("pipeline: swept stuck job",
			zap.String("job_id", job.ID),
			zap.Duration("stalled", stalled),
		)
	}
	return swept, nil
}
