package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// IsTerminalStatus reports whether a job in the given status will never be
// mutated again.
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobParameters are the detection-tuning options captured at job creation.
// They are immutable for the lifetime of the job; nil pointer fields mean
// "use the server default".
type JobParameters struct {
	ConfThreshold          *float64 `json:"conf_threshold,omitempty"`
	ProximityThreshold     *float64 `json:"proximity_threshold,omitempty"`
	OccupancyTimeThreshold *int     `json:"occupancy_time_threshold,omitempty"`
	SaveOutput             bool     `json:"save_output"`
	IncludeFrameStats      bool     `json:"include_frame_stats"`
}

// Job tracks async video detection jobs. The API returns a job id on
// POST /api/v1/detect; the client polls GET /api/v1/jobs/{job_id} until the
// status is terminal. A job is written only by the single worker executing it.
type Job struct {
	ID           uuid.UUID         `db:"id"            json:"id"`
	InputRef     string            `db:"input_ref"     json:"input_ref"`
	OutputRef    string            `db:"output_ref"    json:"output_ref"`
	Parameters   JobParameters     `db:"parameters"    json:"parameters"`
	Status       string            `db:"status"        json:"status"`
	Progress     float64           `db:"progress"      json:"progress"`
	Message      string            `db:"message"       json:"message"`
	ErrorMessage *string           `db:"error_message" json:"error_message,omitempty"`
	Results      *DetectionSummary `db:"results"       json:"results,omitempty"`
	CreatedAt    time.Time         `db:"created_at"    json:"created_at"`
	StartedAt    *time.Time        `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time        `db:"completed_at"  json:"completed_at,omitempty"`
}
