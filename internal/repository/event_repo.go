package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"flowdesk/internal/model"
)

type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends one audit-log entry.
func (r *EventRepository) Insert(ctx context.Context, e *model.IntegrationEvent) error {
	query := `
        INSERT INTO integration_events (id, user_id, provider, event_type, detail, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.db.Exec(ctx, query,
		e.ID,
		e.UserID,
		e.Provider,
		e.EventType,
		e.Detail,
		e.CreatedAt,
	)
	return err
}

// ListByProvider returns the newest events for (provider, user).
func (r *EventRepository) ListByProvider(ctx context.Context, userID int, provider string, limit int) ([]model.IntegrationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
        SELECT id, user_id, provider, event_type, detail, created_at
        FROM integration_events
        WHERE user_id = $1 AND provider = $2
        ORDER BY created_at DESC
        LIMIT $3
    `
	rows, err := r.db.Query(ctx, query, userID, provider, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.IntegrationEvent{}
	for rows.Next() {
		var e model.IntegrationEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Provider, &e.EventType, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteByProvider clears the audit log for (provider, user); used on
// disconnect.
func (r *EventRepository) DeleteByProvider(ctx context.Context, userID int, provider string) error {
	query := `
        DELETE FROM integration_events
        WHERE user_id = $1 AND provider = $2
    `
	_, err := r.db.Exec(ctx, query, userID, provider)
	return err
}
