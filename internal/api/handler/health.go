package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/seatmetrics/seatwatch/internal/api/response"
)

// Pinger is anything that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsProvider reports job counts and queue depth.
type StatsProvider interface {
	Stats(ctx context.Context) (map[string]int, int, error)
}

// HealthDeps are the components the health endpoint checks.
type HealthDeps struct {
	Store    Pinger
	Cache    Pinger
	Detector Pinger
	Jobs     StatsProvider
}

// NewHealthHandler returns the handler for GET /api/v1/health. The endpoint
// reports per-dependency status and stays 200 as long as the store is up;
// cache and detector degradation is survivable.
func NewHealthHandler(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		if err := deps.Store.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}

		if deps.Cache != nil {
			if err := deps.Cache.Ping(ctx); err != nil {
				checks["cache"] = err.Error()
			} else {
				checks["cache"] = "ok"
			}
		}

		if deps.Detector != nil {
			if err := deps.Detector.Ping(ctx); err != nil {
				checks["detector"] = err.Error()
			} else {
				checks["detector"] = "ok"
			}
		}

		body := map[string]any{
			"status": "ok",
			"checks": checks,
		}

		if deps.Jobs != nil {
			if counts, queued, err := deps.Jobs.Stats(ctx); err == nil {
				body["jobs"] = counts
				body["queue_depth"] = queued
			}
		}

		if !healthy {
			body["status"] = "unavailable"
			response.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unreachable", body)
			return
		}
		response.JSON(w, body)
	}
}
