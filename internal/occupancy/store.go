// Package occupancy persists seat state: current seats are upserted by seat
// number, every occupied/freed transition goes to an append-only history,
// and aggregate counts are sampled periodically.
package occupancy

import (
	"context"
	"errors"
	"time"

	"github.com/seatmetrics/seatwatch/pkg/models"
)

var ErrSeatNotFound = errors.New("seat not found")

// Store is the seat persistence interface.
type Store interface {
	UpsertSeat(ctx context.Context, seat *models.Seat) error
	GetSeat(ctx context.Context, seatNumber int) (*models.Seat, error)
	ListSeats(ctx context.Context) ([]*models.Seat, error)

	// ClearSeats removes all current seat rows. Used when a live session
	// restarts and seat numbering begins again.
	ClearSeats(ctx context.Context) error

	AppendEvent(ctx context.Context, event *models.SeatEvent) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*models.SeatEvent, error)

	SaveSnapshot(ctx context.Context, snap *models.OccupancySnapshot) error
	LatestSnapshot(ctx context.Context) (*models.OccupancySnapshot, error)
	ListSnapshots(ctx context.Context, since time.Time, limit int) ([]*models.OccupancySnapshot, error)
}

// EventFilter narrows ListEvents. Zero values mean no constraint.
type EventFilter struct {
	SeatNumber *int
	Since      time.Time
	Limit      int
}
