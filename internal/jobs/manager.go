package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seatmetrics/seatwatch/internal/cache"
	"github.com/seatmetrics/seatwatch/internal/config"
	"github.com/seatmetrics/seatwatch/internal/detector"
	"github.com/seatmetrics/seatwatch/internal/tracking"
	"github.com/seatmetrics/seatwatch/pkg/models"
)

var (
	ErrQueueFull    = errors.New("job queue is full")
	ErrShuttingDown = errors.New("job manager is shutting down")
)

// ManagerOptions wires a Manager's dependencies. Cache is optional; when
// set, terminal jobs are cached for cheap polling.
type ManagerOptions struct {
	Store     Store
	Pipeline  detector.Pipeline
	Cache     cache.Cache
	Detector  config.DetectorConfig
	Occupancy config.OccupancyConfig
	Jobs      config.JobsConfig
	Storage   config.StorageConfig
}

// Manager runs detection jobs on a fixed-size worker pool. A job is bound to
// exactly one worker for its lifetime; the store is the only state shared
// across workers.
type Manager struct {
	store     Store
	pipeline  detector.Pipeline
	cache     cache.Cache
	detCfg    config.DetectorConfig
	occCfg    config.OccupancyConfig
	retention time.Duration
	outputDir string

	queue chan *models.Job
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// terminalJobTTL bounds how long a finished job stays cached.
const terminalJobTTL = time.Hour

// NewManager creates a Manager and starts its workers.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		store:     opts.Store,
		pipeline:  opts.Pipeline,
		cache:     opts.Cache,
		detCfg:    opts.Detector,
		occCfg:    opts.Occupancy,
		retention: opts.Jobs.RetentionAge,
		outputDir: opts.Storage.OutputDir,
		queue:     make(chan *models.Job, opts.Jobs.QueueCapacity),
	}
	for i := 0; i < opts.Jobs.MaxConcurrent; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}
	return m
}

// Submit persists a new PENDING job and enqueues it. The record hits the
// store before the queue, so an accepted job survives a crash.
func (m *Manager) Submit(ctx context.Context, inputRef string, params models.JobParameters) (*models.Job, error) {
	job := &models.Job{
		ID:         uuid.New(),
		InputRef:   inputRef,
		Parameters: params,
		Status:     models.JobStatusPending,
		Message:    "queued for processing",
		CreatedAt:  time.Now().UTC(),
	}

	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		if err := m.store.DeleteJob(ctx, job.ID); err != nil {
			slog.Error("failed to remove rejected job", "job_id", job.ID, "error", err)
		}
		return nil, ErrShuttingDown
	}

	select {
	case m.queue <- job:
		return job, nil
	default:
		if err := m.store.DeleteJob(ctx, job.ID); err != nil {
			slog.Error("failed to remove rejected job", "job_id", job.ID, "error", err)
		}
		return nil, ErrQueueFull
	}
}

// Get returns the most recently persisted state of a job. Terminal jobs are
// served from the cache when possible; they never change again, so polling
// a finished job skips the database. Cache failures fall through to the
// store.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if m.cache != nil {
		if job, ok, err := m.cache.GetJob(ctx, id); err == nil && ok {
			return job, nil
		}
	}

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.cache != nil && models.IsTerminalStatus(job.Status) {
		if err := m.cache.SetJob(ctx, job, terminalJobTTL); err != nil {
			slog.Warn("failed to cache job", "job_id", id, "error", err)
		}
	}
	return job, nil
}

// List returns jobs newest-first.
func (m *Manager) List(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	return m.store.ListJobs(ctx, filter)
}

// Delete removes a terminal job's record and its artifacts. Processing jobs
// are refused with ErrJobActive.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	if m.cache != nil {
		if err := m.cache.Delete(ctx, cache.JobKey(id)); err != nil {
			slog.Warn("failed to evict cached job", "job_id", id, "error", err)
		}
	}
	removeArtifacts(job)
	return nil
}

// RecoverOrphans marks jobs left in PROCESSING by a previous process as
// FAILED. No worker is reattached; resuming mid-stream is not supported.
// Called once at startup, before the HTTP listener starts.
func (m *Manager) RecoverOrphans(ctx context.Context) error {
	all, err := m.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load jobs for recovery: %w", err)
	}

	for _, job := range all {
		if job.Status != models.JobStatusProcessing {
			continue
		}
		slog.Warn("marking orphaned job as failed", "job_id", job.ID, "started_at", job.StartedAt)
		err := m.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
			WithErrorMessage("job orphaned by process restart; resubmit to reprocess"))
		if err != nil {
			return fmt.Errorf("mark orphan %s failed: %w", job.ID, err)
		}
	}
	return nil
}

// RetentionSweep deletes terminal jobs older than the configured age, along
// with their artifacts. Returns the number of jobs removed.
func (m *Manager) RetentionSweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-m.retention)
	swept, err := m.store.SweepOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, job := range swept {
		removeArtifacts(job)
	}
	if len(swept) > 0 {
		slog.Info("retention sweep removed jobs", "count", len(swept), "cutoff", cutoff)
	}
	return len(swept), nil
}

// Stats reports queue depth and per-status job counts.
func (m *Manager) Stats(ctx context.Context) (map[string]int, int, error) {
	counts, err := m.store.CountByStatus(ctx)
	if err != nil {
		return nil, 0, err
	}
	return counts, len(m.queue), nil
}

// Shutdown stops accepting submissions and waits for in-flight and queued
// jobs to finish, up to the context deadline.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job manager shutdown: %w", ctx.Err())
	}
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	for job := range m.queue {
		m.runJob(job, id)
	}
}

// runJob executes one job end to end. Errors never escape: every outcome is
// persisted as a terminal status.
func (m *Manager) runJob(job *models.Job, workerID int) {
	ctx := context.Background()
	log := slog.With("job_id", job.ID, "worker", workerID)

	if err := m.store.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing, WithMessage("processing")); err != nil {
		// The job may have been cancelled or deleted while queued.
		log.Warn("skipping job, could not transition to processing", "error", err)
		return
	}
	log.Info("job started", "input", job.InputRef)

	summary, outputRef, err := m.process(ctx, job, log)
	if err != nil {
		log.Error("job failed", "error", err)
		persistErr := m.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
			WithErrorMessage(err.Error()), WithMessage("processing failed"))
		if persistErr != nil {
			log.Error("failed to persist terminal failure", "error", persistErr)
		}
		return
	}

	opts := []JobUpdateOption{WithResults(summary), WithProgress(100), WithMessage("completed")}
	if outputRef != "" {
		opts = append(opts, WithOutputRef(outputRef))
	}
	err = m.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted, opts...)
	if err != nil {
		log.Error("failed to persist terminal completion", "error", err)
		return
	}
	log.Info("job completed",
		"units", summary.TotalUnits,
		"detections", summary.TotalDetections,
		"seats", summary.UniqueSeats)
}

// process streams the video through the detector, feeding each unit's
// detections into a fresh tracking session and persisting progress. When the
// job asked for a saved output, the returned ref is the annotated video the
// backend rendered.
func (m *Manager) process(ctx context.Context, job *models.Job, log *slog.Logger) (*models.DetectionSummary, string, error) {
	params := job.Parameters

	confThreshold := m.detCfg.ConfThreshold
	if params.ConfThreshold != nil {
		confThreshold = *params.ConfThreshold
	}
	proximity := m.occCfg.ProximityThreshold
	if params.ProximityThreshold != nil {
		proximity = *params.ProximityThreshold
	}
	timeThreshold := m.occCfg.TimeThreshold
	if params.OccupancyTimeThreshold != nil {
		timeThreshold = time.Duration(*params.OccupancyTimeThreshold) * time.Second
	}

	session := tracking.NewSession(tracking.Config{
		ProximityThreshold: proximity,
		TimeThreshold:      timeThreshold,
		GraceWindow:        m.occCfg.GraceWindow,
		DebounceWindow:     m.occCfg.DebounceWindow,
	})

	req := detector.VideoRequest{
		Path:          job.InputRef,
		ConfThreshold: confThreshold,
		IOUThreshold:  m.detCfg.IOUThreshold,
		ImageSize:     m.detCfg.ImageSize,
		Classes:       m.detCfg.Classes,
	}

	var outputRef string
	if params.SaveOutput {
		outputRef = filepath.Join(m.outputDir, fmt.Sprintf("%s.mp4", job.ID))
		req.SaveOutput = true
		req.OutputPath = outputRef
	}

	start := time.Now().UTC()
	var (
		totalUnits   int
		totalDet     int
		personDet    int
		chairDet     int
		seenSeats    = make(map[int]struct{})
		frameStats   []models.FrameStatistics
		lastSnapshot tracking.Snapshot
	)

	err := m.pipeline.ProcessVideo(ctx, req, func(unit detector.Unit) error {
		if unit.Error != "" {
			return fmt.Errorf("unit %d: %s", unit.Index, unit.Error)
		}

		totalUnits++
		totalDet += len(unit.Detections)
		for _, det := range unit.Detections {
			switch det.ClassID {
			case models.ClassPerson:
				personDet++
			case models.ClassChair:
				chairDet++
			}
		}

		// Tick time follows the video timeline, anchored at job start, so
		// occupancy durations reflect video time regardless of inference
		// speed.
		tick := start.Add(time.Duration(unit.TimestampSecs * float64(time.Second)))
		lastSnapshot = session.Observe(tick, unit.Detections)
		for _, seat := range lastSnapshot.Seats {
			seenSeats[seat.ID] = struct{}{}
		}

		if params.IncludeFrameStats {
			frameStats = append(frameStats, models.FrameStatistics{
				FrameNumber:     unit.Index,
				TotalDetections: len(unit.Detections),
				PersonCount:     countClass(unit.Detections, models.ClassPerson),
				ChairCount:      countClass(unit.Detections, models.ClassChair),
				OccupiedSeats:   lastSnapshot.OccupiedSeats,
			})
		}

		progress := 100.0
		if unit.Total > 0 {
			progress = float64(unit.Index+1) / float64(unit.Total) * 100
		}
		msg := fmt.Sprintf("processed %d/%d units", unit.Index+1, unit.Total)
		if err := m.store.UpdateJobProgress(ctx, job.ID, progress, msg); err != nil {
			// Progress loss is tolerable; the next unit retries the write.
			log.Warn("progress persistence failed", "unit", unit.Index, "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	if outputRef != "" {
		if _, statErr := os.Stat(outputRef); statErr != nil {
			log.Warn("backend did not render requested output", "path", outputRef, "error", statErr)
			outputRef = ""
		}
	}

	events := make([]models.OccupancyEvent, 0, len(lastSnapshot.Seats))
	for _, seat := range lastSnapshot.Seats {
		events = append(events, models.OccupancyEvent{
			SeatID:           seat.ID,
			BBox:             seat.BBox,
			OccupiedDuration: seat.DurationSecs,
			TimeExceeded:     seat.TimeExceeded,
		})
	}

	elapsed := time.Since(start).Seconds()
	unitsPerSecond := 0.0
	if elapsed > 0 {
		unitsPerSecond = float64(totalUnits) / elapsed
	}

	summary := &models.DetectionSummary{
		TotalUnits:       totalUnits,
		TotalDetections:  totalDet,
		PersonDetections: personDet,
		ChairDetections:  chairDet,
		UniqueSeats:      len(seenSeats),
		OccupancyEvents:  events,
		ProcessingTime:   elapsed,
		UnitsPerSecond:   unitsPerSecond,
	}
	if params.IncludeFrameStats {
		summary.FrameStatistics = frameStats
	}
	return summary, outputRef, nil
}

func countClass(detections []models.Detection, classID int) int {
	n := 0
	for _, det := range detections {
		if det.ClassID == classID {
			n++
		}
	}
	return n
}

// removeArtifacts deletes the files a job references. Missing files are
// fine; the sweep may run twice.
func removeArtifacts(job *models.Job) {
	for _, ref := range []string{job.InputRef, job.OutputRef} {
		if ref == "" {
			continue
		}
		if err := os.Remove(ref); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove job artifact", "job_id", job.ID, "path", ref, "error", err)
		}
	}
}
