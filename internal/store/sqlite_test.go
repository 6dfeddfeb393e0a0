package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/import-engine/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "import.db")
	s, err := NewSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_CreateAndGetJob(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "/data/events.csv", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.StageDetectDataset, job.Stage)
	assert.Equal(t, 0, job.Batch)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "/data/events.csv", got.FileHandle)
	assert.Equal(t, model.StageDetectDataset, got.Stage)
}

func TestSQLiteStore_GetJob_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetJob(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_SaveJob_RoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "/data/events.csv", 0)
	require.NoError(t, err)

	job.Stage = model.StageDetectSchema
	job.Batch = 3
	job.RowsProcessed = 300
	job.Columns = []string{"title", "lat", "lon"}
	job.Duplicates = model.NewRowSet(7, 12)
	job.Mappings = map[model.Role]model.Mapping{
		model.RoleTitle: {Column: "title", Source: model.MappingSourceDetected, Confidence: 0.9},
	}
	job.RecordError(42, "unreadable cell")
	job.LastRunAt = time.Now().UTC()

	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageDetectSchema, got.Stage)
	assert.Equal(t, 3, got.Batch)
	assert.Equal(t, 300, got.RowsProcessed)
	assert.Equal(t, []string{"title", "lat", "lon"}, got.Columns)
	assert.True(t, got.Duplicates.Contains(7))
	assert.True(t, got.Duplicates.Contains(12))
	assert.False(t, got.Duplicates.Contains(8))
	require.Len(t, got.Errors, 1)
	assert.Equal(t, 42, got.Errors[0].Row)
	assert.Equal(t, model.StageDetectSchema, got.Errors[0].Stage)
	assert.Equal(t, "title", got.Mappings[model.RoleTitle].Column)
}

func TestSQLiteStore_SaveJob_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	job := &model.Job{ID: "ghost", Stage: model.StageGeocode}
	err := s.SaveJob(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_ListJobs(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := s.CreateJob(ctx, "/data/a.csv", 0)
	require.NoError(t, err)
	b, err := s.CreateJob(ctx, "/data/b.xlsx", 1)
	require.NoError(t, err)

	b.Stage = model.StageCompleted
	require.NoError(t, s.SaveJob(ctx, b))

	all, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := s.ListJobs(ctx, JobFilter{Stage: model.StageDetectDataset})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	limited, err := s.ListJobs(ctx, JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_StuckJobs(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	stale, err := s.CreateJob(ctx, "/data/stale.csv", 0)
	require.NoError(t, err)
	stale.Stage = model.StageGeocode
	stale.LastRunAt = time.Now().UTC().Add(-3 * time.Hour)
	require.NoError(t, s.SaveJob(ctx, stale))

	fresh, err := s.CreateJob(ctx, "/data/fresh.csv", 0)
	require.NoError(t, err)
	fresh.Stage = model.StageGeocode
	fresh.LastRunAt = time.Now().UTC()
	require.NoError(t, s.SaveJob(ctx, fresh))

	done, err := s.CreateJob(ctx, "/data/done.csv", 0)
	require.NoError(t, err)
	done.Stage = model.StageCompleted
	done.LastRunAt = time.Now().UTC().Add(-5 * time.Hour)
	require.NoError(t, s.SaveJob(ctx, done))

	stuck, err := s.StuckJobs(ctx, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, stale.ID, stuck[0].ID)
}

func TestSQLiteStore_InsertEvents_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "/data/events.csv", 0)
	require.NoError(t, err)

	lat, lon := 40.7128, -74.006
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	events := []model.Event{
		{
			ID: "ev-1", JobID: job.ID, RowIndex: 0,
			Title: "Street Fair", Location: "Union Square",
			Date: &date, Latitude: &lat, Longitude: &lon, Confidence: 0.9,
			Geometry:  []byte(`{"type":"Point","coordinates":[-74.006,40.7128]}`),
			CreatedAt: time.Now().UTC(),
		},
		{
			ID: "ev-2", JobID: job.ID, RowIndex: 1,
			Title: "Night Market", Confidence: 0.5,
			CreatedAt: time.Now().UTC(),
		},
	}

	n, err := s.InsertEvents(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Replaying the same batch overwrites instead of duplicating.
	events[0].Title = "Spring Street Fair"
	_, err = s.InsertEvents(ctx, events)
	require.NoError(t, err)

	count, err := s.CountEvents(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLiteStore_InsertEvents_Empty(t *testing.T) {
	s := newTestSQLiteStore(t)

	n, err := s.InsertEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
