package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/import-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS import_jobs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL DEFAULT 'detect_dataset',
	batch       INTEGER NOT NULL DEFAULT 0,
	state       TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	last_run_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS import_events (
	id         TEXT NOT NULL,
	job_id     TEXT NOT NULL REFERENCES import_jobs(id),
	row_index  INTEGER NOT NULL,
	title      TEXT NOT NULL,
	description TEXT,
	location   TEXT,
	event_date DATETIME,
	latitude   REAL,
	longitude  REAL,
	confidence REAL NOT NULL DEFAULT 0,
	geometry   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (job_id, row_index)
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_stage ON import_jobs(stage);
CREATE INDEX IF NOT EXISTS idx_import_jobs_last_run_at ON import_jobs(last_run_at);
CREATE INDEX IF NOT EXISTS idx_import_events_job_id ON import_events(job_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, fileHandle string, sheetIndex int) (*model.Job, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal job")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO import_jobs (id, stage, batch, state, created_at, updated_at, last_run_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Stage), job.Batch, string(stateJSON), now, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state FROM import_jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

// SaveJob persists the job's full state. The stage, batch, and last_run_at
// columns are denormalized from the state blob for indexed queries.
func (s *SQLiteStore) SaveJob(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = time.Now().UTC()

	stateJSON, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE import_jobs SET stage = ?, batch = ?, state = ?, updated_at = ?, last_run_at = ? WHERE id = ?`,
		string(job.Stage), job.Batch, string(stateJSON), job.UpdatedAt, job.LastRunAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT state FROM import_jobs WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	return collectJobs(rows, "sqlite: list jobs iterate")
}

func (s *SQLiteStore) StuckJobs(ctx context.Context, cutoff time.Time) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM import_jobs
		 WHERE stage NOT IN (?, ?) AND last_run_at < ?
		 ORDER BY last_run_at ASC`,
		string(model.StageCompleted), string(model.StageFailed), cutoff.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stuck jobs")
	}
	defer rows.Close()

	return collectJobs(rows, "sqlite: stuck jobs iterate")
}

func (s *SQLiteStore) InsertEvents(ctx context.Context, events []model.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO import_events (id, job_id, row_index, title, description, location, event_date, latitude, longitude, confidence, geometry, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, row_index) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			location = excluded.location,
			event_date = excluded.event_date,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			confidence = excluded.confidence,
			geometry = excluded.geometry`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert event")
	}
	defer stmt.Close()

	for _, ev := range events {
		var geometry any
		if len(ev.Geometry) > 0 {
			geometry = string(ev.Geometry)
		}
		_, err := stmt.ExecContext(ctx,
			ev.ID, ev.JobID, ev.RowIndex, ev.Title, ev.Description, ev.Location,
			ev.Date, ev.Latitude, ev.Longitude, ev.Confidence, geometry, ev.CreatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert event for row %d", ev.RowIndex)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit events")
	}
	return len(events), nil
}

func (s *SQLiteStore) CountEvents(ctx context.Context, jobID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM import_events WHERE job_id = ?`,
		jobID,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count events")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var stateJSON string

	err := row.Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, eris.New("job not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	var job model.Job
	if err := json.Unmarshal([]byte(stateJSON), &job); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job state")
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows, iterMsg string) ([]model.Job, error) {
	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), iterMsg)
}
