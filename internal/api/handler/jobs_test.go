package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatmetrics/seatwatch/internal/api/handler"
	"github.com/seatmetrics/seatwatch/internal/config"
	"github.com/seatmetrics/seatwatch/internal/jobs"
	"github.com/seatmetrics/seatwatch/pkg/models"
)

// fakeJobService implements handler.JobService for tests.
type fakeJobService struct {
	jobs      map[uuid.UUID]*models.Job
	submitErr error
	submitted []string
	swept     int
}

func newFakeJobService() *fakeJobService {
	return &fakeJobService{jobs: make(map[uuid.UUID]*models.Job)}
}

func (s *fakeJobService) Submit(_ context.Context, inputRef string, params models.JobParameters) (*models.Job, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.submitted = append(s.submitted, inputRef)
	job := &models.Job{
		ID:         uuid.New(),
		InputRef:   inputRef,
		Parameters: params,
		Status:     models.JobStatusPending,
		Message:    "queued for processing",
		CreatedAt:  time.Now().UTC(),
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *fakeJobService) Get(_ context.Context, id uuid.UUID) (*models.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return job, nil
}

func (s *fakeJobService) List(_ context.Context, filter jobs.JobFilter) ([]*models.Job, int, error) {
	var out []*models.Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, job)
	}
	return out, len(out), nil
}

func (s *fakeJobService) Delete(_ context.Context, id uuid.UUID) error {
	job, ok := s.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	if job.Status == models.JobStatusProcessing {
		return jobs.ErrJobActive
	}
	delete(s.jobs, id)
	return nil
}

func (s *fakeJobService) RetentionSweep(context.Context) (int, error) {
	return s.swept, nil
}

func testStorage(t *testing.T) config.StorageConfig {
	return config.StorageConfig{
		UploadDir:         t.TempDir(),
		OutputDir:         t.TempDir(),
		MaxUploadBytes:    64 << 20,
		AllowedExtensions: []string{"mp4", "avi", "mov", "mkv", "webm"},
	}
}

func multipartVideo(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mp := multipart.NewWriter(&buf)

	fw, err := mp.CreateFormFile("video", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake video bytes"))
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, mp.WriteField(k, v))
	}
	require.NoError(t, mp.Close())
	return &buf, mp.FormDataContentType()
}

func TestDetectHandler_SubmitsJob(t *testing.T) {
	svc := newFakeJobService()
	storage := testStorage(t)
	h := handler.NewDetectHandler(svc, storage)

	body, contentType := multipartVideo(t, "meeting.mp4", map[string]string{
		"conf_threshold":           "0.5",
		"occupancy_time_threshold": "10",
		"include_frame_stats":      "true",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Data models.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.JobStatusPending, resp.Data.Status)
	require.NotNil(t, resp.Data.Parameters.ConfThreshold)
	assert.Equal(t, 0.5, *resp.Data.Parameters.ConfThreshold)
	assert.True(t, resp.Data.Parameters.IncludeFrameStats)

	// The upload landed on disk where the job expects it.
	require.Len(t, svc.submitted, 1)
	saved, err := os.ReadFile(svc.submitted[0])
	require.NoError(t, err)
	assert.Equal(t, "fake video bytes", string(saved))
	assert.Equal(t, storage.UploadDir, filepath.Dir(svc.submitted[0]))
}

func TestDetectHandler_RejectsMissingFile(t *testing.T) {
	h := handler.NewDetectHandler(newFakeJobService(), testStorage(t))

	var buf bytes.Buffer
	mp := multipart.NewWriter(&buf)
	require.NoError(t, mp.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", &buf)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetectHandler_RejectsUnsupportedFormat(t *testing.T) {
	h := handler.NewDetectHandler(newFakeJobService(), testStorage(t))

	body, contentType := multipartVideo(t, "document.pdf", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNSUPPORTED_FORMAT")
}

func TestDetectHandler_RejectsBadParameters(t *testing.T) {
	h := handler.NewDetectHandler(newFakeJobService(), testStorage(t))

	body, contentType := multipartVideo(t, "a.mp4", map[string]string{"conf_threshold": "2.0"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetectHandler_QueueFull(t *testing.T) {
	svc := newFakeJobService()
	svc.submitErr = jobs.ErrQueueFull
	h := handler.NewDetectHandler(svc, testStorage(t))

	body, contentType := multipartVideo(t, "a.mp4", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "QUEUE_FULL")
}

func withJobID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGetJobHandler(t *testing.T) {
	svc := newFakeJobService()
	job, err := svc.Submit(context.Background(), "/tmp/v.mp4", models.JobParameters{})
	require.NoError(t, err)

	h := handler.NewGetJobHandler(svc)

	req := withJobID(httptest.NewRequest(http.MethodGet, "/", nil), job.ID.String())
	w := httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = withJobID(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString())
	w = httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = withJobID(httptest.NewRequest(http.MethodGet, "/", nil), "not-a-uuid")
	w = httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListJobsHandler(t *testing.T) {
	svc := newFakeJobService()
	for i := 0; i < 3; i++ {
		_, err := svc.Submit(context.Background(), fmt.Sprintf("/tmp/%d.mp4", i), models.JobParameters{})
		require.NoError(t, err)
	}

	h := handler.NewListJobsHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	h(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []models.Job `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 3)
	assert.Equal(t, 3, resp.Meta.Total)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=bogus", nil)
	w = httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteJobHandler(t *testing.T) {
	svc := newFakeJobService()
	job, err := svc.Submit(context.Background(), "/tmp/v.mp4", models.JobParameters{})
	require.NoError(t, err)

	h := handler.NewDeleteJobHandler(svc)

	req := withJobID(httptest.NewRequest(http.MethodDelete, "/", nil), job.ID.String())
	w := httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = withJobID(httptest.NewRequest(http.MethodDelete, "/", nil), job.ID.String())
	w = httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteJobHandler_ActiveJobConflicts(t *testing.T) {
	svc := newFakeJobService()
	job, err := svc.Submit(context.Background(), "/tmp/v.mp4", models.JobParameters{})
	require.NoError(t, err)
	svc.jobs[job.ID].Status = models.JobStatusProcessing

	h := handler.NewDeleteJobHandler(svc)

	req := withJobID(httptest.NewRequest(http.MethodDelete, "/", nil), job.ID.String())
	w := httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "JOB_ACTIVE")
}

func TestDownloadHandler(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "annotated.mp4")
	require.NoError(t, os.WriteFile(output, []byte("annotated video"), 0o644))

	svc := newFakeJobService()
	job, err := svc.Submit(context.Background(), "/tmp/v.mp4", models.JobParameters{})
	require.NoError(t, err)

	h := handler.NewDownloadHandler(svc)

	// Not completed yet.
	req := withJobID(httptest.NewRequest(http.MethodGet, "/", nil), job.ID.String())
	w := httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Completed but no saved output.
	svc.jobs[job.ID].Status = models.JobStatusCompleted
	req = withJobID(httptest.NewRequest(http.MethodGet, "/", nil), job.ID.String())
	w = httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Completed with output.
	svc.jobs[job.ID].OutputRef = output
	req = withJobID(httptest.NewRequest(http.MethodGet, "/", nil), job.ID.String())
	w = httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "annotated video", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "annotated.mp4")
}

func TestCleanupHandler(t *testing.T) {
	svc := newFakeJobService()
	svc.swept = 4

	h := handler.NewCleanupHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/cleanup", nil)
	w := httptest.NewRecorder()
	h(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Data["removed"])
}
