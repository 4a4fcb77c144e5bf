// Package live serves interactive detection: single uploaded frames and a
// continuous capture loop. Both feed the same tracking session, so a camera
// feed processed frame by frame accumulates seat state exactly like a batch
// job does.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/seatmetrics/seatwatch/internal/cache"
	"github.com/seatmetrics/seatwatch/internal/config"
	"github.com/seatmetrics/seatwatch/internal/detector"
	"github.com/seatmetrics/seatwatch/internal/occupancy"
	"github.com/seatmetrics/seatwatch/internal/tracking"
	"github.com/seatmetrics/seatwatch/pkg/models"
)

// FrameResponse is the result of processing one frame.
type FrameResponse struct {
	Detections     []models.Detection   `json:"detections"`
	Seats          []tracking.SeatState `json:"seats"`
	TotalSeats     int                  `json:"total_seats"`
	OccupiedSeats  int                  `json:"occupied_seats"`
	AvailableSeats int                  `json:"available_seats"`
	PersonCount    int                  `json:"person_count"`
	Timestamp      time.Time            `json:"timestamp"`
}

// Session owns one long-lived tracking session fed by out-of-band frames.
// Unlike a job's session, which one worker drives, this one is hit by
// concurrent HTTP requests and the capture loop, so it serializes access.
type Session struct {
	pipeline detector.Pipeline
	recorder *occupancy.Recorder
	cache    cache.Cache
	detCfg   config.DetectorConfig

	mu      sync.Mutex
	tracker *tracking.Session
}

// SessionOptions wires a Session's dependencies. Recorder and Cache are
// optional.
type SessionOptions struct {
	Pipeline  detector.Pipeline
	Recorder  *occupancy.Recorder
	Cache     cache.Cache
	Detector  config.DetectorConfig
	Occupancy config.OccupancyConfig
}

// NewSession creates a live session with an empty tracker.
func NewSession(opts SessionOptions) *Session {
	return &Session{
		pipeline: opts.Pipeline,
		recorder: opts.Recorder,
		cache:    opts.Cache,
		detCfg:   opts.Detector,
		tracker: tracking.NewSession(tracking.Config{
			ProximityThreshold: opts.Occupancy.ProximityThreshold,
			TimeThreshold:      opts.Occupancy.TimeThreshold,
			GraceWindow:        opts.Occupancy.GraceWindow,
			DebounceWindow:     opts.Occupancy.DebounceWindow,
		}),
	}
}

// ProcessFrame runs detection on one base64-encoded image and advances the
// tracker by one tick.
func (s *Session) ProcessFrame(ctx context.Context, imageBase64 string) (*FrameResponse, error) {
	result, err := s.pipeline.DetectFrame(ctx, detector.FrameRequest{
		ImageBase64:   imageBase64,
		ConfThreshold: s.detCfg.ConfThreshold,
		IOUThreshold:  s.detCfg.IOUThreshold,
		ImageSize:     s.detCfg.ImageSize,
		Classes:       s.detCfg.Classes,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	personCount := 0
	for _, det := range result.Detections {
		if det.ClassID == models.ClassPerson {
			personCount++
		}
	}

	s.mu.Lock()
	snap := s.tracker.Observe(now, result.Detections)
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.Record(ctx, snap, personCount, now)
	}
	s.cacheOccupancy(ctx, snap, personCount, now)

	return &FrameResponse{
		Detections:     result.Detections,
		Seats:          snap.Seats,
		TotalSeats:     snap.TotalSeats,
		OccupiedSeats:  snap.OccupiedSeats,
		AvailableSeats: snap.AvailableSeats,
		PersonCount:    personCount,
		Timestamp:      now,
	}, nil
}

// Occupancy returns the tracker's current state without advancing it.
func (s *Session) Occupancy() tracking.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Snapshot(time.Now().UTC())
}

// Reset drops all tracked seats and clears persisted seat rows.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.tracker.Reset()
	s.mu.Unlock()

	if s.recorder != nil {
		return s.recorder.Reset(ctx)
	}
	return nil
}

func (s *Session) cacheOccupancy(ctx context.Context, snap tracking.Snapshot, personCount int, now time.Time) {
	if s.cache == nil {
		return
	}
	stats := &models.OccupancySnapshot{
		TotalSeats:     snap.TotalSeats,
		OccupiedSeats:  snap.OccupiedSeats,
		AvailableSeats: snap.AvailableSeats,
		PersonCount:    personCount,
		Timestamp:      now,
	}
	if err := s.cache.SetLiveOccupancy(ctx, stats, 30*time.Second); err != nil {
		slog.Warn("caching live occupancy failed", "error", err)
	}
}
