package repositories

import (
	"context"
	"database/sql"
	"time"

	"sharedtrips/internal/domain/models"
)

// ChatMessageRepository is append-only: there is no update or delete.
// Rows carry an auto-increment seq that breaks created_at ties in insertion
// order.
type ChatMessageRepository struct {
	DB DBTX
}

func (r ChatMessageRepository) Append(ctx context.Context, m models.ChatMessage) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO chat_messages (id, trip_id, user_id, user_name, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.TripID, m.UserID, m.UserName, m.Text, m.CreatedAt,
	)
	return err
}

func (r ChatMessageRepository) ListByTrip(ctx context.Context, tripID string) ([]models.ChatMessage, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, trip_id, user_id, user_name, text, created_at
		FROM chat_messages WHERE trip_id=? ORDER BY created_at ASC, seq ASC`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.TripID, &m.UserID, &m.UserName, &m.Text, &m.CreatedAt); err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r ChatMessageRepository) LastCreatedAt(ctx context.Context, tripID string) (time.Time, error) {
	var last sql.NullTime
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(created_at) FROM chat_messages WHERE trip_id=?`, tripID).Scan(&last); err != nil {
		return time.Time{}, err
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}
