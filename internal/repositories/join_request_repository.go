package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"sharedtrips/internal/domain/models"
)

const requestColumns = `id, trip_id, user_id, status, created_at, updated_at`

type JoinRequestRepository struct {
	DB DBTX
}

func (r JoinRequestRepository) Insert(ctx context.Context, req models.JoinRequest) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO join_requests (id, trip_id, user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.TripID, req.UserID, string(req.Status), req.CreatedAt, req.UpdatedAt,
	)
	return err
}

func (r JoinRequestRepository) GetByID(ctx context.Context, id string) (models.JoinRequest, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM join_requests WHERE id=? LIMIT 1`, id)
	return scanRequest(row)
}

// FindLive returns the PENDING or APPROVED request of a user on a trip.
func (r JoinRequestRepository) FindLive(ctx context.Context, tripID, userID string) (models.JoinRequest, bool, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM join_requests
		WHERE trip_id=? AND user_id=? AND status IN (?, ?)
		ORDER BY created_at ASC LIMIT 1`,
		tripID, userID, string(models.RequestPending), string(models.RequestApproved),
	)
	req, err := scanRequest(row)
	if errors.Is(err, ErrNotFound) {
		return models.JoinRequest{}, false, nil
	}
	if err != nil {
		return models.JoinRequest{}, false, err
	}
	return req, true, nil
}

func (r JoinRequestRepository) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE join_requests SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), at, id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r JoinRequestRepository) ListByTrip(ctx context.Context, tripID string) ([]models.JoinRequest, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM join_requests WHERE trip_id=? ORDER BY created_at ASC, id ASC`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.JoinRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return out, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ListByTrips loads the requests of many trips in one query, grouped by trip id.
func (r JoinRequestRepository) ListByTrips(ctx context.Context, tripIDs []string) (map[string][]models.JoinRequest, error) {
	out := make(map[string][]models.JoinRequest, len(tripIDs))
	if len(tripIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tripIDs)), ",")
	args := make([]any, 0, len(tripIDs))
	for _, id := range tripIDs {
		args = append(args, id)
	}

	rows, err := r.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM join_requests WHERE trip_id IN (`+placeholders+`) ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return out, err
		}
		out[req.TripID] = append(out[req.TripID], req)
	}
	return out, rows.Err()
}

func scanRequest(s rowScanner) (models.JoinRequest, error) {
	var (
		req    models.JoinRequest
		status string
	)
	err := s.Scan(&req.ID, &req.TripID, &req.UserID, &status, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.JoinRequest{}, ErrNotFound
	}
	req.Status = models.RequestStatus(status)
	return req, err
}
