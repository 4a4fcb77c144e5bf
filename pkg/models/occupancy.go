package models

import "time"

const (
	SeatStatusAvailable = "available"
	SeatStatusOccupied  = "occupied"
)

// Seat event types recorded in the append-only occupancy log.
const (
	SeatEventOccupied = "occupied"
	SeatEventFreed    = "freed"
)

// Seat is the persisted current state of one tracked seat region, keyed by
// seat number.
type Seat struct {
	SeatNumber       int          `db:"seat_number"       json:"id"`
	Status           string       `db:"status"            json:"status"`
	PersonID         *int         `db:"person_id"         json:"person_id,omitempty"`
	BBox             *BoundingBox `db:"bbox"              json:"bbox,omitempty"`
	OccupiedSince    *time.Time   `db:"occupied_since"    json:"occupied_since,omitempty"`
	DurationSeconds  int          `db:"duration"          json:"duration"`
	DurationExceeded bool         `db:"duration_exceeded" json:"duration_exceeded"`
	LastUpdated      time.Time    `db:"last_updated"      json:"last_updated"`
	CreatedAt        time.Time    `db:"created_at"        json:"created_at"`
}

// SeatEvent is one row of the append-only occupancy history. Duration is set
// on freed events only and carries the seconds the seat was held.
type SeatEvent struct {
	ID              int64     `db:"id"          json:"id"`
	SeatNumber      int       `db:"seat_number" json:"seat_number"`
	PersonID        *int      `db:"person_id"   json:"person_id,omitempty"`
	EventType       string    `db:"event_type"  json:"event_type"`
	DurationSeconds *int      `db:"duration"    json:"duration,omitempty"`
	Timestamp       time.Time `db:"timestamp"   json:"timestamp"`
}

// OccupancySnapshot is a periodic aggregate of the room state.
type OccupancySnapshot struct {
	TotalSeats     int       `db:"total_seats"     json:"total_seats"`
	OccupiedSeats  int       `db:"occupied_seats"  json:"occupied_seats"`
	AvailableSeats int       `db:"available_seats" json:"available_seats"`
	PersonCount    int       `db:"person_count"    json:"person_count"`
	Timestamp      time.Time `db:"timestamp"       json:"timestamp"`
}
