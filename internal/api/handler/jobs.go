package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/seatmetrics/seatwatch/internal/api/response"
	"github.com/seatmetrics/seatwatch/internal/config"
	"github.com/seatmetrics/seatwatch/internal/jobs"
	"github.com/seatmetrics/seatwatch/pkg/models"
)

// JobService defines the orchestrator operations the handlers depend on.
type JobService interface {
	Submit(ctx context.Context, inputRef string, params models.JobParameters) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, filter jobs.JobFilter) ([]*models.Job, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RetentionSweep(ctx context.Context) (int, error)
}

// NewDetectHandler returns the handler for POST /api/v1/detect: accept a
// video upload, stash it, and submit a detection job. The response is 202
// with the pending job; callers poll the job endpoint for progress.
func NewDetectHandler(svc JobService, storage config.StorageConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			response.Error(w, http.StatusRequestEntityTooLarge,
				"UPLOAD_TOO_LARGE", "Upload exceeds the size limit", nil)
			return
		}

		file, header, err := r.FormFile("video")
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "video file is required", nil)
			return
		}
		defer file.Close()

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
		if !allowedExtension(ext, storage.AllowedExtensions) {
			response.Error(w, http.StatusBadRequest,
				"UNSUPPORTED_FORMAT", fmt.Sprintf("unsupported video format %q", ext),
				map[string]any{"allowed": storage.AllowedExtensions})
			return
		}

		params, err := parseJobParameters(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		inputRef := filepath.Join(storage.UploadDir, fmt.Sprintf("%s.%s", uuid.New(), ext))
		if err := saveUpload(file, inputRef); err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to store upload", nil)
			return
		}

		job, err := svc.Submit(r.Context(), inputRef, params)
		if err != nil {
			os.Remove(inputRef)
			switch {
			case errors.Is(err, jobs.ErrQueueFull):
				response.Error(w, http.StatusServiceUnavailable,
					"QUEUE_FULL", "Too many queued jobs, retry later", nil)
			case errors.Is(err, jobs.ErrShuttingDown):
				response.Error(w, http.StatusServiceUnavailable,
					"SHUTTING_DOWN", "Service is shutting down", nil)
			default:
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "Failed to submit job", nil)
			}
			return
		}

		response.Accepted(w, job)
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseJobID(w, r)
		if !ok {
			return
		}

		job, err := svc.Get(r.Context(), id)
		if errors.Is(err, jobs.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}
		response.JSON(w, job)
	}
}

// NewListJobsHandler returns the handler for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := jobs.JobFilter{
			Status: r.URL.Query().Get("status"),
			Page:   queryInt(r, "page", 1),
			Limit:  queryInt(r, "limit", 50),
		}
		if filter.Limit > 200 {
			filter.Limit = 200
		}
		if filter.Status != "" && !validStatusFilter(filter.Status) {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", fmt.Sprintf("unknown status %q", filter.Status), nil)
			return
		}

		list, total, err := svc.List(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}
		if list == nil {
			list = []*models.Job{}
		}

		response.Collection(w, list, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// NewDeleteJobHandler returns the handler for DELETE /api/v1/jobs/{jobID}.
func NewDeleteJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseJobID(w, r)
		if !ok {
			return
		}

		err := svc.Delete(r.Context(), id)
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		case errors.Is(err, jobs.ErrJobActive):
			response.Error(w, http.StatusConflict,
				"JOB_ACTIVE", "Job is processing and cannot be deleted", nil)
		case err != nil:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete job", nil)
		default:
			response.NoContent(w)
		}
	}
}

// NewDownloadHandler returns the handler for GET /api/v1/jobs/{jobID}/download,
// serving the annotated output video of a completed job.
func NewDownloadHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseJobID(w, r)
		if !ok {
			return
		}

		job, err := svc.Get(r.Context(), id)
		if errors.Is(err, jobs.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		if job.Status != models.JobStatusCompleted {
			response.Error(w, http.StatusConflict,
				"NOT_READY", "Job has not completed", map[string]any{"status": job.Status})
			return
		}
		if job.OutputRef == "" {
			response.Error(w, http.StatusNotFound,
				"NO_OUTPUT", "Job has no saved output; submit with save_output=true", nil)
			return
		}
		if _, err := os.Stat(job.OutputRef); err != nil {
			response.Error(w, http.StatusNotFound, "NO_OUTPUT", "Output artifact no longer exists", nil)
			return
		}

		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", filepath.Base(job.OutputRef)))
		http.ServeFile(w, r, job.OutputRef)
	}
}

// NewCleanupHandler returns the handler for POST /api/v1/jobs/cleanup, which
// runs the retention sweep on demand.
func NewCleanupHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := svc.RetentionSweep(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Cleanup failed", nil)
			return
		}
		response.JSON(w, map[string]int{"removed": removed})
	}
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// parseJobParameters reads tuning overrides from the multipart form.
func parseJobParameters(r *http.Request) (models.JobParameters, error) {
	var params models.JobParameters

	if v := r.FormValue("conf_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			return params, fmt.Errorf("conf_threshold must be a number in (0, 1]")
		}
		params.ConfThreshold = &f
	}
	if v := r.FormValue("proximity_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return params, fmt.Errorf("proximity_threshold must be a positive number")
		}
		params.ProximityThreshold = &f
	}
	if v := r.FormValue("occupancy_time_threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return params, fmt.Errorf("occupancy_time_threshold must be a positive integer")
		}
		params.OccupancyTimeThreshold = &n
	}
	if v := r.FormValue("save_output"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return params, fmt.Errorf("save_output must be a boolean")
		}
		params.SaveOutput = b
	}
	if v := r.FormValue("include_frame_stats"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return params, fmt.Errorf("include_frame_stats must be a boolean")
		}
		params.IncludeFrameStats = b
	}
	return params, nil
}

func allowedExtension(ext string, allowed []string) bool {
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

func validStatusFilter(status string) bool {
	switch status {
	case models.JobStatusPending, models.JobStatusProcessing,
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		return true
	}
	return false
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func saveUpload(src io.Reader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
