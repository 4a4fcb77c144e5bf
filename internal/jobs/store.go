// Package jobs owns the detection job lifecycle: the durable job store and
// the manager that runs jobs on a bounded worker pool.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/seatmetrics/seatwatch/pkg/models"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrJobActive = errors.New("job is currently processing")
)

// validTransitions defines the allowed job status transitions. Terminal
// statuses have no outgoing edges.
var validTransitions = map[string][]string{
	models.JobStatusPending:    {models.JobStatusProcessing, models.JobStatusCancelled, models.JobStatusFailed},
	models.JobStatusProcessing: {models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled},
	models.JobStatusCompleted:  {},
	models.JobStatusFailed:     {},
	models.JobStatusCancelled:  {},
}

// Store is the durable job record interface. Every mutation is persisted
// before it is acknowledged, so a crash never loses an accepted job.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)

	// LoadAll returns every job record. Used once at startup for crash
	// recovery, when orphaned processing jobs must be found.
	LoadAll(ctx context.Context) ([]*models.Job, error)

	// UpdateJobStatus applies a status transition, stamping started_at or
	// completed_at as appropriate. Invalid transitions are rejected.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error

	// UpdateJobProgress persists progress and message without touching
	// status. Called once per processed unit.
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress float64, message string) error

	// DeleteJob removes a job record. Returns ErrJobActive while the job
	// is processing; the worker owns the record until it reaches a
	// terminal status.
	DeleteJob(ctx context.Context, id uuid.UUID) error

	// SweepOlderThan deletes terminal jobs whose completion time is before
	// the cutoff and returns them so the caller can remove their artifacts.
	// A long-lived job that only just finished is never swept, no matter
	// how old its creation time is.
	SweepOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Job, error)

	CountByStatus(ctx context.Context) (map[string]int, error)
}

// JobFilter narrows ListJobs. Zero values mean no constraint.
type JobFilter struct {
	Status string
	Page   int
	Limit  int
}

type jobUpdateParams struct {
	ErrorMessage *string
	Message      *string
	Results      *models.DetectionSummary
	OutputRef    *string
	Progress     *float64
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Message = &msg
	}
}

func WithResults(results *models.DetectionSummary) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Results = results
	}
}

func WithOutputRef(ref string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.OutputRef = &ref
	}
}

func WithProgress(progress float64) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Progress = &progress
	}
}

// isValidTransition reports whether a job may move from one status to
// another.
func isValidTransition(from, to string) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
