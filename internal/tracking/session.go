// Package tracking converts per-frame detections into stable seat identities.
//
// A seat is a place, not a person: incoming occupant detections are matched
// to existing identities by spatial proximity of bounding-box centers rather
// than by the upstream tracker's volatile track IDs, which reset whenever its
// internal track is lost.
package tracking

import (
	"math"
	"time"

	"github.com/seatmetrics/seatwatch/pkg/models"
)

// DefaultGraceWindow is how long an unmatched identity survives before
// eviction.
const DefaultGraceWindow = 10 * time.Second

// Config tunes one tracking session.
type Config struct {
	// ProximityThreshold is the maximum center-to-center pixel distance at
	// which a detection continues an existing identity.
	ProximityThreshold float64

	// TimeThreshold is the occupancy duration after which a seat reports
	// TimeExceeded.
	TimeThreshold time.Duration

	// GraceWindow is how long an identity may go unmatched before it is
	// evicted. Zero means DefaultGraceWindow.
	GraceWindow time.Duration

	// DebounceWindow smooths the occupied flag: a seat reports occupied
	// while now-lastSeen <= DebounceWindow. Zero keeps the raw semantics,
	// where one missed frame reports the seat available for that tick.
	DebounceWindow time.Duration
}

// identity is one tracked seat region. The bbox is the anchoring detection
// and does not follow later matches; the seat is the place where a person
// was first observed.
type identity struct {
	id        int
	bbox      models.BoundingBox
	createdAt time.Time
	lastSeen  time.Time
	occupied  bool
}

// SeatState is the externally visible state of one identity at a tick.
// Duration and TimeExceeded are derived, never stored.
type SeatState struct {
	ID           int                `json:"id"`
	BBox         models.BoundingBox `json:"bbox"`
	Occupied     bool               `json:"occupied"`
	Duration     time.Duration      `json:"-"`
	DurationSecs float64            `json:"duration"`
	TimeExceeded bool               `json:"time_exceeded"`
	FirstSeen    time.Time          `json:"first_seen"`
	LastSeen     time.Time          `json:"last_seen"`
}

// Snapshot is the output of one tick.
type Snapshot struct {
	Seats          []SeatState `json:"seats"`
	TotalSeats     int         `json:"total_seats"`
	OccupiedSeats  int         `json:"occupied_seats"`
	AvailableSeats int         `json:"available_seats"`
}

// Session owns the identity map for one job or one live stream. It is not
// safe for concurrent use; each session has exactly one caller.
type Session struct {
	cfg        Config
	nextID     int
	identities []*identity
}

// NewSession creates an empty session.
func NewSession(cfg Config) *Session {
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	return &Session{cfg: cfg, nextID: 1}
}

// Observe runs one tick: match occupant detections to identities, create
// identities for unmatched detections, evict stale identities, and return a
// snapshot. After the snapshot is taken every occupied flag is cleared; a
// seat is occupied in the next tick only if re-matched then.
func (s *Session) Observe(now time.Time, detections []models.Detection) Snapshot {
	for _, det := range detections {
		if det.ClassID != models.ClassPerson {
			continue
		}
		if match := s.match(det.BBox); match != nil {
			match.occupied = true
			match.lastSeen = now
			continue
		}
		s.identities = append(s.identities, &identity{
			id:        s.nextID,
			bbox:      det.BBox,
			createdAt: now,
			lastSeen:  now,
			occupied:  true,
		})
		s.nextID++
	}

	s.evict(now)

	snap := s.snapshot(now)

	for _, ident := range s.identities {
		ident.occupied = false
	}

	return snap
}

// Snapshot returns the current state without advancing the tick. Occupied
// flags reflect the debounce window only, since raw flags are cleared at the
// end of every Observe.
func (s *Session) Snapshot(now time.Time) Snapshot {
	return s.snapshot(now)
}

// Reset drops all identities and restarts ID allocation.
func (s *Session) Reset() {
	s.identities = nil
	s.nextID = 1
}

// Len returns the number of live identities.
func (s *Session) Len() int {
	return len(s.identities)
}

// match returns the nearest identity whose center lies within the proximity
// threshold of the detection center, or nil. Picking the nearest rather than
// the first in insertion order makes the result independent of iteration
// order when two identities are both in range.
func (s *Session) match(bbox models.BoundingBox) *identity {
	cx, cy := bbox.Center()

	var best *identity
	bestDist := s.cfg.ProximityThreshold
	for _, ident := range s.identities {
		ix, iy := ident.bbox.Center()
		d := math.Hypot(ix-cx, iy-cy)
		if d < bestDist {
			best = ident
			bestDist = d
		}
	}
	return best
}

func (s *Session) evict(now time.Time) {
	kept := s.identities[:0]
	for _, ident := range s.identities {
		if now.Sub(ident.lastSeen) <= s.cfg.GraceWindow {
			kept = append(kept, ident)
		}
	}
	s.identities = kept
}

func (s *Session) snapshot(now time.Time) Snapshot {
	snap := Snapshot{Seats: make([]SeatState, 0, len(s.identities))}
	for _, ident := range s.identities {
		duration := now.Sub(ident.createdAt)
		occupied := ident.occupied
		if !occupied && s.cfg.DebounceWindow > 0 {
			occupied = now.Sub(ident.lastSeen) <= s.cfg.DebounceWindow
		}
		snap.Seats = append(snap.Seats, SeatState{
			ID:           ident.id,
			BBox:         ident.bbox,
			Occupied:     occupied,
			Duration:     duration,
			DurationSecs: duration.Seconds(),
			TimeExceeded: duration >= s.cfg.TimeThreshold,
			FirstSeen:    ident.createdAt,
			LastSeen:     ident.lastSeen,
		})
		if occupied {
			snap.OccupiedSeats++
		}
	}
	snap.TotalSeats = len(snap.Seats)
	snap.AvailableSeats = snap.TotalSeats - snap.OccupiedSeats
	return snap
}
