package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/import-engine/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT state FROM import_jobs WHERE id = \$1`).
		WithArgs("nonexistent-job").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "nonexistent-job")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	state, err := json.Marshal(model.Job{
		ID:         "job-1",
		FileHandle: "/data/events.csv",
		Stage:      model.StageGeocode,
		Batch:      4,
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT state FROM import_jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow(state))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageGeocode, job.Stage)
	assert.Equal(t, 4, job.Batch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO import_jobs`).
		WithArgs(pgxmock.AnyArg(), string(model.StageDetectDataset), 0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.CreateJob(context.Background(), "/data/events.csv", 2)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 2, job.SheetIndex)
	assert.Equal(t, model.StageDetectDataset, job.Stage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE import_jobs SET`).
		WithArgs(string(model.StageGeocode), 1, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SaveJob(context.Background(), &model.Job{ID: "ghost", Stage: model.StageGeocode, Batch: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StuckJobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	state, err := json.Marshal(model.Job{ID: "job-stale", Stage: model.StageDetectSchema})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT state FROM import_jobs`).
		WithArgs(string(model.StageCompleted), string(model.StageFailed), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow(state))

	jobs, err := s.StuckJobs(context.Background(), time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-stale", jobs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertEvents_Empty(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	n, err := s.InsertEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPostgresStore_InsertEvents_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_import_events"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_import_events"}, eventColumns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "import_events" .+ ON CONFLICT \("job_id", "row_index"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := s.InsertEvents(context.Background(), []model.Event{
		{ID: "ev-1", JobID: "job-1", RowIndex: 0, Title: "Street Fair", Confidence: 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
