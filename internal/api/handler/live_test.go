package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatmetrics/seatwatch/internal/api/handler"
	"github.com/seatmetrics/seatwatch/internal/live"
	"github.com/seatmetrics/seatwatch/internal/tracking"
)

type fakeRunner struct {
	startErr error
	stopErr  error
	status   live.RunnerStatus
	started  bool
	stopped  bool
}

func (r *fakeRunner) Start(context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.started = true
	return nil
}

func (r *fakeRunner) Stop() error {
	if r.stopErr != nil {
		return r.stopErr
	}
	r.stopped = true
	return nil
}

func (r *fakeRunner) Status() live.RunnerStatus { return r.status }

type fakeOccupancyReader struct {
	snap tracking.Snapshot
}

func (r *fakeOccupancyReader) Occupancy() tracking.Snapshot { return r.snap }

func TestStartLiveHandler(t *testing.T) {
	runner := &fakeRunner{status: live.RunnerStatus{Running: true}}
	h := handler.NewStartLiveHandler(runner)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/api/v1/live/start", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, runner.started)
	assert.Contains(t, w.Body.String(), `"running":true`)
}

func TestStartLiveHandler_AlreadyRunning(t *testing.T) {
	h := handler.NewStartLiveHandler(&fakeRunner{startErr: live.ErrAlreadyRunning})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/api/v1/live/start", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ALREADY_RUNNING")
}

func TestStartLiveHandler_NoCamera(t *testing.T) {
	h := handler.NewStartLiveHandler(nil)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/api/v1/live/start", nil))

	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Contains(t, w.Body.String(), "NO_CAMERA")
}

func TestStopLiveHandler(t *testing.T) {
	runner := &fakeRunner{}
	h := handler.NewStopLiveHandler(runner)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/api/v1/live/stop", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, runner.stopped)
}

func TestStopLiveHandler_NotRunning(t *testing.T) {
	h := handler.NewStopLiveHandler(&fakeRunner{stopErr: live.ErrNotRunning})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/api/v1/live/stop", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_RUNNING")
}

func TestLiveStatusHandler_NilRunner(t *testing.T) {
	h := handler.NewLiveStatusHandler(nil)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/v1/live/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"running":false`)
}

type fakeResetter struct {
	err   error
	reset bool
}

func (r *fakeResetter) Reset(context.Context) error {
	if r.err != nil {
		return r.err
	}
	r.reset = true
	return nil
}

func TestFrameStatsHandler(t *testing.T) {
	reader := &fakeOccupancyReader{snap: tracking.Snapshot{
		TotalSeats:    2,
		OccupiedSeats: 1,
	}}
	h := handler.NewFrameStatsHandler(reader)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/v1/frames/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_seats":2`)
	assert.Contains(t, w.Body.String(), `"occupied_seats":1`)
}

func TestResetFramesHandler(t *testing.T) {
	resetter := &fakeResetter{}
	h := handler.NewResetFramesHandler(resetter)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/api/v1/frames/reset", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resetter.reset)
	assert.Contains(t, w.Body.String(), `"status":"reset"`)
}

func TestResetFramesHandler_Error(t *testing.T) {
	h := handler.NewResetFramesHandler(&fakeResetter{err: errors.New("db down")})

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/api/v1/frames/reset", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestLiveOccupancyHandler(t *testing.T) {
	reader := &fakeOccupancyReader{snap: tracking.Snapshot{
		TotalSeats:     3,
		OccupiedSeats:  2,
		AvailableSeats: 1,
	}}
	h := handler.NewLiveOccupancyHandler(reader)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/v1/live/occupancy", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_seats":3`)
	assert.Contains(t, w.Body.String(), `"occupied_seats":2`)
}
