package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/geoextract/constants"
	"github.com/joseph-ayodele/geoextract/internal/common"
	"github.com/joseph-ayodele/geoextract/internal/entity"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleJob(submitted time.Time) entity.Job {
	started := submitted.Add(time.Second)
	finished := submitted.Add(5 * time.Second)
	threshold := 0.7
	gap := &entity.CoverageGap{}
	gap.Add(3, constants.GapRasterizeFailed)
	return entity.Job{
		ID:       uuid.New(),
		Document: entity.Document{ID: uuid.New(), Filename: "report.pdf", Format: constants.PDF, PageCount: 10, SizeBytes: 2048},
		Config: entity.JobConfig{
			OCRBackend:          constants.OCRTesseract,
			ModelBackend:        constants.ModelNone,
			ResolutionDPI:       300,
			Language:            "en",
			ConfidenceThreshold: &threshold,
			RegionOfInterest:    &entity.BBox{MinLat: 34, MinLon: -118, MaxLat: 36, MaxLon: -117},
		},
		State:       constants.JobCompleted,
		Progress:    entity.Progress{PagesTotal: 10, PagesProcessed: 10, PagesFailed: 1, EntitiesTotal: 3, EntitiesValidated: 3},
		CoverageGap: gap,
		SubmittedAt: submitted,
		StartedAt:   &started,
		FinishedAt:  &finished,
	}
}

func sampleRecords(docID uuid.UUID) []entity.Record {
	return []entity.Record{
		{
			EntityType:           constants.EntityCoordinate,
			Fields:               map[string]any{"raw": "LAT: 35.4717 LON: -117.6797"},
			NormalizedCoordinate: &entity.NormalizedCoordinate{Lat: 35.4717, Lon: -117.6797, Format: "decimal"},
			Confidence:           0.95,
			Method:               constants.MethodPattern,
			Status:               constants.StatusAccepted,
			Source:               entity.Source{DocumentID: docID, PageIndex: 0, TextSpan: "LAT: 35.4717 LON: -117.6797"},
		},
		{
			EntityType: constants.EntitySample,
			Fields:     map[string]any{"id": "SR-004"},
			Confidence: 0.4,
			Method:     constants.MethodPattern,
			Status:     constants.StatusFlagged,
			Reason:     constants.ReasonBelowThreshold,
			Source:     entity.Source{DocumentID: docID, PageIndex: 0},
			Seq:        1,
		},
		{
			EntityType: constants.EntityDrillHole,
			Fields:     map[string]any{"hole_id": "DDH-1", "depth_from": 30.0, "depth_to": 10.0},
			Confidence: 0.9,
			Method:     constants.MethodPattern,
			Status:     constants.StatusRejected,
			Reason:     constants.ReasonInvalidDepth,
			Source:     entity.Source{DocumentID: docID, PageIndex: 1},
		},
	}
}

func TestStore_SaveAndGetJob(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	job := sampleJob(time.Date(2026, 5, 1, 9, 30, 0, 123000000, time.UTC))

	require.NoError(t, s.SaveJob(ctx, job, sampleRecords(job.Document.ID)))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Document, got.Document)
	assert.Equal(t, job.Config, got.Config)
	assert.Equal(t, job.State, got.State)
	assert.Equal(t, job.Progress, got.Progress)
	assert.Equal(t, job.CoverageGap, got.CoverageGap)
	assert.True(t, job.SubmittedAt.Equal(got.SubmittedAt))
	require.NotNil(t, got.FinishedAt)
	assert.True(t, job.FinishedAt.Equal(*got.FinishedAt))

	_, err = s.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrJobNotFound)
}

func TestStore_ListRecords(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	job := sampleJob(time.Now())
	recs := sampleRecords(job.Document.ID)
	require.NoError(t, s.SaveJob(ctx, job, recs))

	all, err := s.ListRecords(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, recs[0], all[0])
	assert.Equal(t, constants.EntityDrillHole, all[2].EntityType)

	kept, err := s.ListRecords(ctx, job.ID, constants.StatusAccepted, constants.StatusFlagged)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "SR-004", kept[1].Fields["id"])

	none, err := s.ListRecords(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_SaveJobIsUpsert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	job := sampleJob(time.Now())
	require.NoError(t, s.SaveJob(ctx, job, sampleRecords(job.Document.ID)))

	job.State = constants.JobFailed
	job.Reason = constants.FailCancelled
	job.CoverageGap = nil
	require.NoError(t, s.SaveJob(ctx, job, nil))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobFailed, got.State)
	assert.Equal(t, constants.FailCancelled, got.Reason)
	assert.Nil(t, got.CoverageGap)

	recs, err := s.ListRecords(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_ListJobsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		job := sampleJob(base.Add(time.Duration(i) * time.Hour))
		job.StartedAt, job.FinishedAt = nil, nil
		require.NoError(t, s.SaveJob(ctx, job, nil))
		ids = append(ids, job.ID)
	}

	jobs, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)
	assert.Nil(t, jobs[0].StartedAt)
}

func TestStore_PingAndMigrateTwice(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Ping(context.Background(), time.Second))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestStore_MigrateCreatesSchema(t *testing.T) {
	s, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	var names []string
	rows, err := s.drv.DB().QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type IN ('table', 'index') AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	require.NoError(t, err)
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"jobs", "jobs_submitted_at_idx", "records"}, names)

	var cols int
	require.NoError(t, s.drv.DB().QueryRowContext(ctx, `SELECT count(*) FROM pragma_table_info('records')`).Scan(&cols))
	assert.Equal(t, 10, cols)
	require.NoError(t, s.drv.DB().QueryRowContext(ctx, `SELECT count(*) FROM pragma_table_info('jobs')`).Scan(&cols))
	assert.Equal(t, len(jobColumns), cols)
}

func TestOpen_NotConfigured(t *testing.T) {
	_, err := Open(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
