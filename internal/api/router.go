package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/seatmetrics/seatwatch/internal/api/middleware"
	"github.com/seatmetrics/seatwatch/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	DetectHandler    http.HandlerFunc
	GetJobHandler    http.HandlerFunc
	ListJobsHandler  http.HandlerFunc
	DeleteJobHandler http.HandlerFunc
	DownloadHandler  http.HandlerFunc
	CleanupHandler   http.HandlerFunc

	ProcessFrameHandler http.HandlerFunc
	UploadFrameHandler  http.HandlerFunc
	FrameStatsHandler   http.HandlerFunc
	ResetFramesHandler  http.HandlerFunc

	StartLiveHandler     http.HandlerFunc
	StopLiveHandler      http.HandlerFunc
	LiveStatusHandler    http.HandlerFunc
	LiveOccupancyHandler http.HandlerFunc

	ListSeatsHandler   http.HandlerFunc
	GetSeatHandler     http.HandlerFunc
	HistoryHandler     http.HandlerFunc
	StatsHandler       http.HandlerFunc
	LatestStatsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/detect", orNotImplemented(deps.DetectHandler))

		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Post("/api/v1/jobs/cleanup", orNotImplemented(deps.CleanupHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.DeleteJobHandler))
		r.Get("/api/v1/jobs/{jobID}/download", orNotImplemented(deps.DownloadHandler))

		r.Post("/api/v1/frames", orNotImplemented(deps.ProcessFrameHandler))
		r.Post("/api/v1/frames/upload", orNotImplemented(deps.UploadFrameHandler))
		r.Get("/api/v1/frames/stats", orNotImplemented(deps.FrameStatsHandler))
		r.Post("/api/v1/frames/reset", orNotImplemented(deps.ResetFramesHandler))

		r.Post("/api/v1/live/start", orNotImplemented(deps.StartLiveHandler))
		r.Post("/api/v1/live/stop", orNotImplemented(deps.StopLiveHandler))
		r.Get("/api/v1/live/status", orNotImplemented(deps.LiveStatusHandler))
		r.Get("/api/v1/live/occupancy", orNotImplemented(deps.LiveOccupancyHandler))

		r.Get("/api/v1/seats", orNotImplemented(deps.ListSeatsHandler))
		r.Get("/api/v1/seats/{seatNumber}", orNotImplemented(deps.GetSeatHandler))
		r.Get("/api/v1/occupancy/history", orNotImplemented(deps.HistoryHandler))
		r.Get("/api/v1/occupancy/stats", orNotImplemented(deps.StatsHandler))
		r.Get("/api/v1/stats/latest", orNotImplemented(deps.LatestStatsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
