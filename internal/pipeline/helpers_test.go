package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/import-engine/internal/config"
	"github.com/sells-group/import-engine/internal/model"
	"github.com/sells-group/import-engine/internal/reader"
	"github.com/sells-group/import-engine/internal/store"
	"github.com/sells-group/import-engine/pkg/geocode"
)

// memStore is an in-memory store.Store. Jobs round-trip through JSON on every
// save and load so tests catch state that would not survive persistence.
type memStore struct {
	mu     sync.Mutex
	jobs   map[string]json.RawMessage
	events map[string]map[int]model.Event
}

func newMemStore() *memStore {
	return &memStore{
		jobs:   make(map[string]json.RawMessage),
		events: make(map[string]map[int]model.Event),
	}
}

func (s *memStore) CreateJob(_ context.Context, fileHandle string, sheetIndex int) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:         uuid.New().String(),
		FileHandle: fileHandle,
		SheetIndex: sheetIndex,
		Stage:      model.StageDetectDataset,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.jobs[job.ID] = data
	s.mu.Unlock()
	return job, nil
}

func (s *memStore) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	data, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return nil, eris.Errorf("memstore: job %s not found", jobID)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *memStore) SaveJob(_ context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return eris.Errorf("memstore: job %s not found", job.ID)
	}
	s.jobs[job.ID] = data
	return nil
}

func (s *memStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]model.Job, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var out []model.Job
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if filter.Stage != "" && job.Stage != filter.Stage {
			continue
		}
		out = append(out, *job)
	}
	return out, nil
}

func (s *memStore) StuckJobs(ctx context.Context, cutoff time.Time) ([]model.Job, error) {
	jobs, err := s.ListJobs(ctx, store.JobFilter{})
	if err != nil {
		return nil, err
	}
	var out []model.Job
	for _, job := range jobs {
		if !job.Stage.Terminal() && job.LastRunAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *memStore) InsertEvents(_ context.Context, events []model.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		byRow, ok := s.events[ev.JobID]
		if !ok {
			byRow = make(map[int]model.Event)
			s.events[ev.JobID] = byRow
		}
		byRow[ev.RowIndex] = ev
	}
	return len(events), nil
}

func (s *memStore) CountEvents(_ context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[jobID]), nil
}

func (s *memStore) eventsFor(jobID string) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, 0, len(s.events[jobID]))
	for _, ev := range s.events[jobID] {
		out = append(out, ev)
	}
	return out
}

func (s *memStore) eventAt(jobID string, rowIndex int) (model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[jobID][rowIndex]
	return ev, ok
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

// fakeReader serves a fixed header and row grid as a single sheet.
type fakeReader struct {
	sheetName string
	header    []string
	rows      [][]string
}

func (r *fakeReader) Sheets(context.Context, string) ([]reader.SheetInfo, error) {
	name := r.sheetName
	if name == "" {
		name = "Sheet1"
	}
	return []reader.SheetInfo{{Index: 0, Name: name, Rows: len(r.rows)}}, nil
}

func (r *fakeReader) Header(context.Context, string, int) ([]string, error) {
	return r.header, nil
}

func (r *fakeReader) Read(_ context.Context, _ string, _, startRow, limit int) ([]model.Row, error) {
	if startRow >= len(r.rows) {
		return nil, nil
	}
	end := startRow + limit
	if end > len(r.rows) {
		end = len(r.rows)
	}
	out := make([]model.Row, 0, end-startRow)
	for i := startRow; i < end; i++ {
		out = append(out, model.Row{Index: i, Cells: r.rows[i]})
	}
	return out, nil
}

// fakeGeocoder returns canned results per address and records every call.
type fakeGeocoder struct {
	mu      sync.Mutex
	results map[string]*geocode.Result
	errs    map[string]error
	calls   []string
}

func (g *fakeGeocoder) Geocode(_ context.Context, address string) (*geocode.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, address)
	g.mu.Unlock()

	if err, ok := g.errs[address]; ok {
		return nil, err
	}
	if res, ok := g.results[address]; ok {
		out := *res
		return &out, nil
	}
	return &geocode.Result{Matched: false}, nil
}

func (g *fakeGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// recordQueue captures enqueued follow-up tasks.
type recordQueue struct {
	mu    sync.Mutex
	tasks []string
}

func (q *recordQueue) Enqueue(_ context.Context, task, _ string, _ int) error {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	return nil
}

func testConfig(batchSize int) *config.Config {
	return &config.Config{
		Import: config.ImportConfig{
			BatchSize:      batchSize,
			SwapThreshold:  0.7,
			SwapSampleSize: 100,
		},
		Schema: config.SchemaConfig{
			ReservoirCap: 256,
			SampleCap:    8,
		},
		Geocode: config.GeocodeConfig{
			MaxFailureRate: 1.0,
		},
	}
}

func newTestOrchestrator(cfg *config.Config, st store.Store, gc geocode.Client, r reader.BatchReader, opts ...Option) *Orchestrator {
	opts = append(opts, WithReaderFactory(func(string) (reader.BatchReader, error) {
		return r, nil
	}))
	return New(cfg, st, gc, opts...)
}

// runToTerminal drives a job until it reaches a terminal stage. Returns the
// final job and the last ProcessNext error, if any.
func runToTerminal(ctx context.Context, o *Orchestrator, st store.Store, jobID string) (*model.Job, error) {
	for i := 0; i < 100; i++ {
		err := o.ProcessNext(ctx, jobID)
		job, getErr := st.GetJob(ctx, jobID)
		if getErr != nil {
			return nil, getErr
		}
		if job.Stage.Terminal() {
			return job, err
		}
		if err != nil {
			return job, err
		}
	}
	return nil, eris.New("job did not reach a terminal stage")
}
