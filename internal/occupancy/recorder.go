package occupancy

import (
	"context"
	"log/slog"
	"time"

	"github.com/seatmetrics/seatwatch/internal/events"
	"github.com/seatmetrics/seatwatch/internal/tracking"
	"github.com/seatmetrics/seatwatch/pkg/models"
)

// Recorder turns tracking snapshots into persisted seat state. It diffs
// consecutive snapshots to detect occupied/freed transitions, upserts current
// seat rows, appends history events, publishes each transition, and samples
// aggregate stats every snapshotEvery ticks.
//
// Persistence failures are logged and skipped; recording must never stall
// the capture loop feeding it.
type Recorder struct {
	store     Store
	publisher events.Publisher

	snapshotEvery int
	tick          int

	// prev maps seat number to its last reported occupied state.
	prev map[int]seatMemo
}

type seatMemo struct {
	occupied bool
	since    time.Time
}

// NewRecorder creates a Recorder. snapshotEvery <= 0 disables aggregate
// sampling.
func NewRecorder(store Store, publisher events.Publisher, snapshotEvery int) *Recorder {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Recorder{
		store:         store,
		publisher:     publisher,
		snapshotEvery: snapshotEvery,
		prev:          make(map[int]seatMemo),
	}
}

// Record processes one tracking snapshot taken at now. personCount is the
// number of occupant detections in the originating frame.
func (r *Recorder) Record(ctx context.Context, snap tracking.Snapshot, personCount int, now time.Time) {
	current := make(map[int]seatMemo, len(snap.Seats))

	for _, seat := range snap.Seats {
		memo := seatMemo{occupied: seat.Occupied, since: seat.FirstSeen}
		current[seat.ID] = memo

		r.upsert(ctx, seat, now)

		was := r.prev[seat.ID]
		switch {
		case seat.Occupied && !was.occupied:
			r.logEvent(ctx, seat.ID, models.SeatEventOccupied, nil, now)
		case !seat.Occupied && was.occupied:
			duration := int(now.Sub(was.since).Seconds())
			r.logEvent(ctx, seat.ID, models.SeatEventFreed, &duration, now)
		}
	}

	// Seats evicted from the tracker free up without a closing snapshot
	// entry.
	for id, was := range r.prev {
		if _, ok := current[id]; ok || !was.occupied {
			continue
		}
		duration := int(now.Sub(was.since).Seconds())
		r.logEvent(ctx, id, models.SeatEventFreed, &duration, now)
	}
	r.prev = current

	r.tick++
	if r.snapshotEvery > 0 && r.tick%r.snapshotEvery == 0 {
		stats := &models.OccupancySnapshot{
			TotalSeats:     snap.TotalSeats,
			OccupiedSeats:  snap.OccupiedSeats,
			AvailableSeats: snap.AvailableSeats,
			PersonCount:    personCount,
			Timestamp:      now,
		}
		if err := r.store.SaveSnapshot(ctx, stats); err != nil {
			slog.Warn("saving occupancy snapshot failed", "error", err)
		}
	}
}

// Reset clears transition memory and current seat rows. Called when a live
// session restarts.
func (r *Recorder) Reset(ctx context.Context) error {
	r.prev = make(map[int]seatMemo)
	r.tick = 0
	return r.store.ClearSeats(ctx)
}

func (r *Recorder) upsert(ctx context.Context, seat tracking.SeatState, now time.Time) {
	status := models.SeatStatusAvailable
	var personID *int
	var occupiedSince *time.Time
	if seat.Occupied {
		status = models.SeatStatusOccupied
		id := seat.ID
		personID = &id
		since := seat.FirstSeen
		occupiedSince = &since
	}

	bbox := seat.BBox
	row := &models.Seat{
		SeatNumber:       seat.ID,
		Status:           status,
		PersonID:         personID,
		BBox:             &bbox,
		OccupiedSince:    occupiedSince,
		DurationSeconds:  int(seat.Duration.Seconds()),
		DurationExceeded: seat.TimeExceeded,
		LastUpdated:      now,
		CreatedAt:        seat.FirstSeen,
	}
	if err := r.store.UpsertSeat(ctx, row); err != nil {
		slog.Warn("upserting seat failed", "seat", seat.ID, "error", err)
	}
}

func (r *Recorder) logEvent(ctx context.Context, seatNumber int, eventType string, duration *int, now time.Time) {
	event := &models.SeatEvent{
		SeatNumber:      seatNumber,
		EventType:       eventType,
		DurationSeconds: duration,
		Timestamp:       now,
	}
	if eventType == models.SeatEventOccupied {
		id := seatNumber
		event.PersonID = &id
	}

	if err := r.store.AppendEvent(ctx, event); err != nil {
		slog.Warn("appending seat event failed", "seat", seatNumber, "event", eventType, "error", err)
	}
	if err := r.publisher.PublishTransition(ctx, events.FromSeatEvent(*event)); err != nil {
		slog.Warn("publishing seat transition failed", "seat", seatNumber, "event", eventType, "error", err)
	}
}
