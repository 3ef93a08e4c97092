package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"sharedtrips/internal/domain/models"
)

const tripColumns = `id, from_city, to_city, trip_date, trip_time, driver_name, seats_total, seats_taken, created_at`

type TripRepository struct {
	DB DBTX
}

func (r TripRepository) Insert(ctx context.Context, t models.Trip) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO trips (id, from_city, to_city, trip_date, trip_time, driver_name, seats_total, seats_taken, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.From, t.To, t.Date, t.Time, t.Driver, t.SeatsTotal, t.SeatsTaken, t.CreatedAt,
	)
	return err
}

func (r TripRepository) GetByID(ctx context.Context, id string) (models.Trip, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=? LIMIT 1`, id)
	return scanTrip(row)
}

// GetForUpdate locks the trip row until the surrounding transaction ends.
func (r TripRepository) GetForUpdate(ctx context.Context, id string) (models.Trip, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=? FOR UPDATE`, id)
	return scanTrip(row)
}

func (r TripRepository) List(ctx context.Context, f models.TripFilter) ([]models.Trip, error) {
	where := []string{"1=1"}
	args := []any{}
	if v := strings.TrimSpace(f.From); v != "" {
		where = append(where, "from_city=?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.To); v != "" {
		where = append(where, "to_city=?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.Date); v != "" {
		where = append(where, "trip_date=?")
		args = append(args, v)
	}

	query := `SELECT ` + tripColumns + ` FROM trips WHERE ` + strings.Join(where, " AND ") + ` ORDER BY trip_date ASC, trip_time ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// IncrementSeatsTaken is a conditional update: it never moves seats_taken
// past seats_total, whatever the caller believes the current count to be.
func (r TripRepository) IncrementSeatsTaken(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE trips SET seats_taken = seats_taken + 1 WHERE id=? AND seats_taken < seats_total`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(s rowScanner) (models.Trip, error) {
	var t models.Trip
	err := s.Scan(&t.ID, &t.From, &t.To, &t.Date, &t.Time, &t.Driver, &t.SeatsTotal, &t.SeatsTaken, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trip{}, ErrNotFound
	}
	return t, err
}
