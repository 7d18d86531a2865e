package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowdesk/internal/model"
)

type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the user's email settings, falling back to defaults when the
// user never saved any.
func (r *SettingsRepository) Get(ctx context.Context, userID int) (model.EmailSettings, error) {
	query := `
        SELECT user_id, auto_complete_sent_emails, retention_days
        FROM email_settings
        WHERE user_id = $1
    `
	var s model.EmailSettings
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.AutoCompleteSentEmails,
		&s.RetentionDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultEmailSettings(userID), nil
		}
		return model.EmailSettings{}, err
	}
	return s, nil
}

// Upsert saves the user's email settings.
func (r *SettingsRepository) Upsert(ctx context.Context, s model.EmailSettings) error {
	query := `
        INSERT INTO email_settings (user_id, auto_complete_sent_emails, retention_days, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (user_id) DO UPDATE SET
            auto_complete_sent_emails = EXCLUDED.auto_complete_sent_emails,
            retention_days = EXCLUDED.retention_days,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query, s.UserID, s.AutoCompleteSentEmails, s.RetentionDays)
	return err
}
