package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seatmetrics/seatwatch/internal/api/response"
	"github.com/seatmetrics/seatwatch/internal/cache"
	"github.com/seatmetrics/seatwatch/internal/occupancy"
	"github.com/seatmetrics/seatwatch/pkg/models"
)

// NewListSeatsHandler returns the handler for GET /api/v1/seats.
func NewListSeatsHandler(store occupancy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seats, err := store.ListSeats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list seats", nil)
			return
		}
		if seats == nil {
			seats = []*models.Seat{}
		}
		response.JSON(w, seats)
	}
}

// NewGetSeatHandler returns the handler for GET /api/v1/seats/{seatNumber}.
func NewGetSeatHandler(store occupancy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seatNumber, err := strconv.Atoi(chi.URLParam(r, "seatNumber"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "seatNumber must be an integer", nil)
			return
		}

		seat, err := store.GetSeat(r.Context(), seatNumber)
		if errors.Is(err, occupancy.ErrSeatNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Seat not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load seat", nil)
			return
		}
		response.JSON(w, seat)
	}
}

// NewHistoryHandler returns the handler for GET /api/v1/occupancy/history.
// Supports seat, since (RFC3339), and limit query parameters.
func NewHistoryHandler(store occupancy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := occupancy.EventFilter{
			Limit: queryInt(r, "limit", 100),
		}
		if filter.Limit > 1000 {
			filter.Limit = 1000
		}

		if v := r.URL.Query().Get("seat"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "seat must be an integer", nil)
				return
			}
			filter.SeatNumber = &n
		}
		if v := r.URL.Query().Get("since"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.Error(w, http.StatusBadRequest,
					"INVALID_REQUEST", "since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = ts
		}

		events, err := store.ListEvents(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list events", nil)
			return
		}
		if events == nil {
			events = []*models.SeatEvent{}
		}
		response.JSON(w, events)
	}
}

// NewStatsHandler returns the handler for GET /api/v1/occupancy/stats: the
// latest aggregate snapshot plus a recent window of samples.
func NewStatsHandler(store occupancy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, err := store.LatestSnapshot(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stats", nil)
			return
		}

		since := time.Now().UTC().Add(-time.Hour)
		if v := r.URL.Query().Get("since"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.Error(w, http.StatusBadRequest,
					"INVALID_REQUEST", "since must be a valid RFC3339 timestamp", nil)
				return
			}
			since = ts
		}

		history, err := store.ListSnapshots(r.Context(), since, queryInt(r, "limit", 100))
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stats", nil)
			return
		}
		if history == nil {
			history = []*models.OccupancySnapshot{}
		}

		response.JSON(w, map[string]any{
			"latest":  latest,
			"history": history,
		})
	}
}

// NewLatestStatsHandler returns the handler for GET /api/v1/stats/latest:
// the most recent aggregate snapshot, served from the live-occupancy cache
// when a fresh one is there and from the store otherwise. A nil cache or a
// cache failure falls through to the store.
func NewLatestStatsHandler(c cache.Cache, store occupancy.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c != nil {
			if snap, ok, err := c.GetLiveOccupancy(r.Context()); err == nil && ok {
				response.JSON(w, snap)
				return
			}
		}

		latest, err := store.LatestSnapshot(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stats", nil)
			return
		}
		response.JSON(w, latest)
	}
}
