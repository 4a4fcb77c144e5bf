package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/seatmetrics/seatwatch/internal/api/response"
	"github.com/seatmetrics/seatwatch/internal/live"
	"github.com/seatmetrics/seatwatch/internal/tracking"
)

// CaptureController is the live capture loop the handlers drive.
type CaptureController interface {
	Start(ctx context.Context) error
	Stop() error
	Status() live.RunnerStatus
}

// OccupancyReader exposes the live session's current tracking state.
type OccupancyReader interface {
	Occupancy() tracking.Snapshot
}

// SessionResetter clears a live session's tracked seats and persisted rows.
type SessionResetter interface {
	Reset(ctx context.Context) error
}

// NewStartLiveHandler returns the handler for POST /api/v1/live/start.
func NewStartLiveHandler(runner CaptureController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			response.Error(w, http.StatusNotImplemented,
				"NO_CAMERA", "No live snapshot source configured", nil)
			return
		}
		if err := runner.Start(r.Context()); err != nil {
			if errors.Is(err, live.ErrAlreadyRunning) {
				response.Error(w, http.StatusConflict, "ALREADY_RUNNING", "Live capture already running", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start live capture", nil)
			return
		}
		response.JSON(w, runner.Status())
	}
}

// NewStopLiveHandler returns the handler for POST /api/v1/live/stop.
func NewStopLiveHandler(runner CaptureController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			response.Error(w, http.StatusNotImplemented,
				"NO_CAMERA", "No live snapshot source configured", nil)
			return
		}
		if err := runner.Stop(); err != nil {
			if errors.Is(err, live.ErrNotRunning) {
				response.Error(w, http.StatusConflict, "NOT_RUNNING", "Live capture is not running", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to stop live capture", nil)
			return
		}
		response.JSON(w, runner.Status())
	}
}

// NewLiveStatusHandler returns the handler for GET /api/v1/live/status.
func NewLiveStatusHandler(runner CaptureController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			response.JSON(w, live.RunnerStatus{Running: false})
			return
		}
		response.JSON(w, runner.Status())
	}
}

// NewLiveOccupancyHandler returns the handler for GET /api/v1/live/occupancy,
// the current in-memory tracking state of the live session.
func NewLiveOccupancyHandler(session OccupancyReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, session.Occupancy())
	}
}

// NewFrameStatsHandler returns the handler for GET /api/v1/frames/stats: the
// tracking state accumulated by out-of-band frame submissions.
func NewFrameStatsHandler(session OccupancyReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, session.Occupancy())
	}
}

// NewResetFramesHandler returns the handler for POST /api/v1/frames/reset.
// Resetting drops every tracked seat and clears the persisted seat rows, so
// seat numbering starts over at 1.
func NewResetFramesHandler(session SessionResetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := session.Reset(r.Context()); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reset session", nil)
			return
		}
		response.JSON(w, map[string]string{"status": "reset"})
	}
}
