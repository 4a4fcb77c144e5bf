package jobs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/seatmetrics/seatwatch/internal/jobs"
	"github.com/seatmetrics/seatwatch/pkg/models"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("seatwatch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, jobs.RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func sampleJob() *models.Job {
	conf := 0.5
	proximity := 80.0
	timeThreshold := 15
	return &models.Job{
		ID:       uuid.New(),
		InputRef: "/data/uploads/meeting.mp4",
		Parameters: models.JobParameters{
			ConfThreshold:          &conf,
			ProximityThreshold:     &proximity,
			OccupancyTimeThreshold: &timeThreshold,
			SaveOutput:             true,
			IncludeFrameStats:      true,
		},
		Status:    models.JobStatusPending,
		Message:   "queued for processing",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestJobStore_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := sampleJob()
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)

	// The record must round-trip field for field.
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.InputRef, got.InputRef)
	assert.Equal(t, job.Status, got.Status)
	assert.Equal(t, job.Message, got.Message)
	assert.Equal(t, job.Progress, got.Progress)
	require.NotNil(t, got.Parameters.ConfThreshold)
	assert.Equal(t, 0.5, *got.Parameters.ConfThreshold)
	require.NotNil(t, got.Parameters.ProximityThreshold)
	assert.Equal(t, 80.0, *got.Parameters.ProximityThreshold)
	require.NotNil(t, got.Parameters.OccupancyTimeThreshold)
	assert.Equal(t, 15, *got.Parameters.OccupancyTimeThreshold)
	assert.True(t, got.Parameters.SaveOutput)
	assert.True(t, got.Parameters.IncludeFrameStats)
	assert.Equal(t, job.CreatedAt, got.CreatedAt.UTC())
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.Results)
}

func TestJobStore_GetMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestJobStore_StatusTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := sampleJob()
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing))
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
	assert.NotNil(t, got.StartedAt)

	results := &models.DetectionSummary{
		TotalUnits:      3,
		TotalDetections: 3,
		UniqueSeats:     1,
		OccupancyEvents: []models.OccupancyEvent{
			{SeatID: 1, BBox: models.BoundingBox{X1: 10, Y1: 10, X2: 50, Y2: 50}, OccupiedDuration: 11, TimeExceeded: true},
		},
	}
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted,
		jobs.WithResults(results), jobs.WithProgress(100), jobs.WithMessage("completed")))

	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.Progress)
	assert.Equal(t, "completed", got.Message)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Results)
	assert.Equal(t, 3, got.Results.TotalDetections)
	require.Len(t, got.Results.OccupancyEvents, 1)
	assert.True(t, got.Results.OccupancyEvents[0].TimeExceeded)

	// Terminal statuses have no outgoing transitions.
	err = s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing)
	assert.Error(t, err)
}

func TestJobStore_InvalidTransitionRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := sampleJob()
	require.NoError(t, s.CreateJob(ctx, job))

	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job status transition")
}

func TestJobStore_UpdateProgress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := sampleJob()
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing))

	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, 42.5, "processed 17/40 units"))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.5, got.Progress)
	assert.Equal(t, "processed 17/40 units", got.Message)

	assert.ErrorIs(t, s.UpdateJobProgress(ctx, uuid.New(), 10, "x"), jobs.ErrNotFound)
}

func TestJobStore_ListNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		job := sampleJob()
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateJob(ctx, job))
		ids = append(ids, job.ID)
	}

	listed, total, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, listed, 3)
	assert.Equal(t, ids[2], listed[0].ID)
	assert.Equal(t, ids[0], listed[2].ID)
}

func TestJobStore_ListFiltersByStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	pending := sampleJob()
	require.NoError(t, s.CreateJob(ctx, pending))

	processing := sampleJob()
	require.NoError(t, s.CreateJob(ctx, processing))
	require.NoError(t, s.UpdateJobStatus(ctx, processing.ID, models.JobStatusProcessing))

	listed, total, err := s.ListJobs(ctx, jobs.JobFilter{Status: models.JobStatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, listed, 1)
	assert.Equal(t, processing.ID, listed[0].ID)
}

func TestJobStore_DeleteGuardsProcessing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := sampleJob()
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing))

	assert.ErrorIs(t, s.DeleteJob(ctx, job.ID), jobs.ErrJobActive)

	require.NoError(t, s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted))
	require.NoError(t, s.DeleteJob(ctx, job.ID))

	_, err := s.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	assert.ErrorIs(t, s.DeleteJob(ctx, job.ID), jobs.ErrNotFound)
}

func TestJobStore_SweepOlderThan(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := jobs.NewPostgresStore(pool)
	ctx := context.Background()

	finishJob := func(j *models.Job, completedAt time.Time) {
		t.Helper()
		require.NoError(t, s.CreateJob(ctx, j))
		require.NoError(t, s.UpdateJobStatus(ctx, j.ID, models.JobStatusProcessing))
		require.NoError(t, s.UpdateJobStatus(ctx, j.ID, models.JobStatusCompleted))
		_, err := pool.Exec(ctx, "UPDATE jobs SET completed_at = $1 WHERE id = $2", completedAt, j.ID)
		require.NoError(t, err)
	}

	finishedLongAgo := sampleJob()
	finishedLongAgo.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	finishJob(finishedLongAgo, time.Now().UTC().Add(-47*time.Hour))

	// Created long before the cutoff but finished a minute ago. Retention
	// keys on when the job completed, so this one must survive.
	justFinished := sampleJob()
	justFinished.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	finishJob(justFinished, time.Now().UTC().Add(-time.Minute))

	oldActive := sampleJob()
	oldActive.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.CreateJob(ctx, oldActive))
	require.NoError(t, s.UpdateJobStatus(ctx, oldActive.ID, models.JobStatusProcessing))

	fresh := sampleJob()
	require.NoError(t, s.CreateJob(ctx, fresh))

	swept, err := s.SweepOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, finishedLongAgo.ID, swept[0].ID)

	// Recently finished, non-terminal, and fresh jobs survive.
	_, err = s.GetJob(ctx, justFinished.ID)
	assert.NoError(t, err)
	_, err = s.GetJob(ctx, oldActive.ID)
	assert.NoError(t, err)
	_, err = s.GetJob(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestJobStore_ConcurrentStartSingleWinner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	job := sampleJob()
	require.NoError(t, s.CreateJob(ctx, job))

	// Several racers all try to claim the pending job. The status guard on
	// the UPDATE must let exactly one through.
	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing)
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestJobStore_LoadAllAndCounts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := jobs.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.CreateJob(ctx, sampleJob()))
	}
	processing := sampleJob()
	require.NoError(t, s.CreateJob(ctx, processing))
	require.NoError(t, s.UpdateJobStatus(ctx, processing.ID, models.JobStatusProcessing))

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.JobStatusPending])
	assert.Equal(t, 1, counts[models.JobStatusProcessing])
}
