package occupancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seatmetrics/seatwatch/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertSeat(ctx context.Context, seat *models.Seat) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seats (seat_number, status, person_id, bbox, occupied_since, duration_seconds, duration_exceeded, last_updated, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (seat_number) DO UPDATE SET
		   status = EXCLUDED.status,
		   person_id = EXCLUDED.person_id,
		   bbox = EXCLUDED.bbox,
		   occupied_since = EXCLUDED.occupied_since,
		   duration_seconds = EXCLUDED.duration_seconds,
		   duration_exceeded = EXCLUDED.duration_exceeded,
		   last_updated = EXCLUDED.last_updated`,
		seat.SeatNumber, seat.Status, seat.PersonID, seat.BBox, seat.OccupiedSince,
		seat.DurationSeconds, seat.DurationExceeded, seat.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert seat %d: %w", seat.SeatNumber, err)
	}
	return nil
}

func (s *PostgresStore) GetSeat(ctx context.Context, seatNumber int) (*models.Seat, error) {
	var seat models.Seat
	err := s.pool.QueryRow(ctx,
		`SELECT seat_number, status, person_id, bbox, occupied_since, duration_seconds, duration_exceeded, last_updated, created_at
		 FROM seats WHERE seat_number = $1`, seatNumber).
		Scan(&seat.SeatNumber, &seat.Status, &seat.PersonID, &seat.BBox, &seat.OccupiedSince,
			&seat.DurationSeconds, &seat.DurationExceeded, &seat.LastUpdated, &seat.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSeatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get seat: %w", err)
	}
	return &seat, nil
}

func (s *PostgresStore) ListSeats(ctx context.Context) ([]*models.Seat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seat_number, status, person_id, bbox, occupied_since, duration_seconds, duration_exceeded, last_updated, created_at
		 FROM seats ORDER BY seat_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("list seats: %w", err)
	}
	defer rows.Close()

	var seats []*models.Seat
	for rows.Next() {
		var seat models.Seat
		if err := rows.Scan(&seat.SeatNumber, &seat.Status, &seat.PersonID, &seat.BBox, &seat.OccupiedSince,
			&seat.DurationSeconds, &seat.DurationExceeded, &seat.LastUpdated, &seat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		seats = append(seats, &seat)
	}
	return seats, rows.Err()
}

func (s *PostgresStore) ClearSeats(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM seats`); err != nil {
		return fmt.Errorf("clear seats: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event *models.SeatEvent) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO occupancy_history (seat_number, person_id, event_type, duration_seconds, ts)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		event.SeatNumber, event.PersonID, event.EventType, event.DurationSeconds, event.Timestamp).
		Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("append seat event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]*models.SeatEvent, error) {
	query := `SELECT id, seat_number, person_id, event_type, duration_seconds, ts FROM occupancy_history`
	args := []any{}
	where := ""

	if filter.SeatNumber != nil {
		args = append(args, *filter.SeatNumber)
		where = fmt.Sprintf(" WHERE seat_number = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		if where == "" {
			where = fmt.Sprintf(" WHERE ts >= $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND ts >= $%d", len(args))
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += where + fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list seat events: %w", err)
	}
	defer rows.Close()

	var events []*models.SeatEvent
	for rows.Next() {
		var e models.SeatEvent
		if err := rows.Scan(&e.ID, &e.SeatNumber, &e.PersonID, &e.EventType, &e.DurationSeconds, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan seat event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *models.OccupancySnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO occupancy_stats (total_seats, occupied_seats, available_seats, person_count, ts)
		 VALUES ($1, $2, $3, $4, $5)`,
		snap.TotalSeats, snap.OccupiedSeats, snap.AvailableSeats, snap.PersonCount, snap.Timestamp)
	if err != nil {
		return fmt.Errorf("save occupancy snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*models.OccupancySnapshot, error) {
	var snap models.OccupancySnapshot
	err := s.pool.QueryRow(ctx,
		`SELECT total_seats, occupied_seats, available_seats, person_count, ts
		 FROM occupancy_stats ORDER BY ts DESC LIMIT 1`).
		Scan(&snap.TotalSeats, &snap.OccupiedSeats, &snap.AvailableSeats, &snap.PersonCount, &snap.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest occupancy snapshot: %w", err)
	}
	return &snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, since time.Time, limit int) ([]*models.OccupancySnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT total_seats, occupied_seats, available_seats, person_count, ts
		 FROM occupancy_stats WHERE ts >= $1 ORDER BY ts DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list occupancy snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.OccupancySnapshot
	for rows.Next() {
		var snap models.OccupancySnapshot
		if err := rows.Scan(&snap.TotalSeats, &snap.OccupiedSeats, &snap.AvailableSeats, &snap.PersonCount, &snap.Timestamp); err != nil {
			return nil, fmt.Errorf("scan occupancy snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
