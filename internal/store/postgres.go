package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/import-engine/internal/db"
	"github.com/sells-group/import-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.TxPool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_job":   `INSERT INTO import_jobs (id, stage, batch, state, created_at, updated_at, last_run_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"save_job":     `UPDATE import_jobs SET stage = $1, batch = $2, state = $3, updated_at = $4, last_run_at = $5 WHERE id = $6`,
	"get_job":      `SELECT state FROM import_jobs WHERE id = $1`,
	"count_events": `SELECT COUNT(*) FROM import_events WHERE job_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS import_jobs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL DEFAULT 'detect_dataset',
	batch       INTEGER NOT NULL DEFAULT 0,
	state       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_run_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS import_events (
	id          TEXT NOT NULL,
	job_id      TEXT NOT NULL REFERENCES import_jobs(id),
	row_index   INTEGER NOT NULL,
	title       TEXT NOT NULL,
	description TEXT,
	location    TEXT,
	event_date  TIMESTAMPTZ,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	geometry    JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, row_index)
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_stage ON import_jobs(stage);
CREATE INDEX IF NOT EXISTS idx_import_jobs_last_run_at ON import_jobs(last_run_at);
CREATE INDEX IF NOT EXISTS idx_import_events_job_id ON import_events(job_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, fileHandle string, sheetIndex int) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:         uuid.New().String(),
		FileHandle: fileHandle,
		SheetIndex: sheetIndex,
		Stage:      model.StageDetectDataset,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastRunAt:  now,
	}

	stateJSON, err := json.Marshal(job)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal job")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO import_jobs (id, stage, batch, state, created_at, updated_at, last_run_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, string(job.Stage), job.Batch, stateJSON, now, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var stateJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM import_jobs WHERE id = $1`,
		jobID,
	).Scan(&stateJSON)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("postgres: job not found: %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	var job model.Job
	if err := json.Unmarshal(stateJSON, &job); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job state")
	}
	return &job, nil
}

// SaveJob persists the job's full state. The stage, batch, and last_run_at
// columns are denormalized from the state blob for indexed queries.
func (s *PostgresStore) SaveJob(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now().UTC()

	stateJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET stage = $1, batch = $2, state = $3, updated_at = $4, last_run_at = $5 WHERE id = $6`,
		string(job.Stage), job.Batch, stateJSON, job.UpdatedAt, job.LastRunAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT state FROM import_jobs WHERE 1=1`
	var args []any
	arg := 0

	if filter.Stage != "" {
		arg++
		query += ` AND stage = $1`
		args = append(args, string(filter.Stage))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	arg++
	query += ` LIMIT $` + strconv.Itoa(arg)
	args = append(args, limit)

	if filter.Offset > 0 {
		arg++
		query += ` OFFSET $` + strconv.Itoa(arg)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	return collectPgJobs(rows, "postgres: list jobs iterate")
}

func (s *PostgresStore) StuckJobs(ctx context.Context, cutoff time.Time) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state FROM import_jobs
		 WHERE stage NOT IN ($1, $2) AND last_run_at < $3
		 ORDER BY last_run_at ASC`,
		string(model.StageCompleted), string(model.StageFailed), cutoff.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stuck jobs")
	}
	defer rows.Close()

	return collectPgJobs(rows, "postgres: stuck jobs iterate")
}

var eventColumns = []string{
	"id", "job_id", "row_index", "title", "description", "location",
	"event_date", "latitude", "longitude", "confidence", "geometry", "created_at",
}

// InsertEvents upserts a batch of events keyed on (job_id, row_index) via a
// temp-table COPY so replayed batches overwrite their previous rows.
func (s *PostgresStore) InsertEvents(ctx context.Context, events []model.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(events))
	for i, ev := range events {
		var geometry any
		if len(ev.Geometry) > 0 {
			geometry = []byte(ev.Geometry)
		}
		rows[i] = []any{
			ev.ID, ev.JobID, ev.RowIndex, ev.Title, ev.Description, ev.Location,
			ev.Date, ev.Latitude, ev.Longitude, ev.Confidence, geometry, ev.CreatedAt,
		}
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "import_events",
		Columns:      eventColumns,
		ConflictKeys: []string{"job_id", "row_index"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert events")
	}
	return int(n), nil
}

func (s *PostgresStore) CountEvents(ctx context.Context, jobID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM import_events WHERE job_id = $1`,
		jobID,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count events")
}

// helpers

func collectPgJobs(rows pgx.Rows, iterMsg string) ([]model.Job, error) {
	var jobs []model.Job
	for rows.Next() {
		var stateJSON []byte
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		var job model.Job
		if err := json.Unmarshal(stateJSON, &job); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job state")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), iterMsg)
}
