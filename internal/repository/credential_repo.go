package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowdesk/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type CredentialRepository struct {
	db *pgxpool.Pool
}

func NewCredentialRepository(db *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert persists a credential, replacing any existing one for the same
// (provider, user).
func (r *CredentialRepository) Upsert(ctx context.Context, c *model.OAuthCredential) error {
	query := `
        INSERT INTO oauth_credentials
            (provider, user_id, access_token, refresh_token, expires_at, scope,
             account_email, account_name, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
        ON CONFLICT (provider, user_id) DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            expires_at = EXCLUDED.expires_at,
            scope = EXCLUDED.scope,
            account_email = EXCLUDED.account_email,
            account_name = EXCLUDED.account_name,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query,
		c.Provider,
		c.UserID,
		c.AccessToken,
		c.RefreshToken,
		c.ExpiresAt,
		c.Scope,
		c.AccountEmail,
		c.AccountName,
	)
	return err
}

// Find returns the credential for (provider, user), or ErrNotFound.
func (r *CredentialRepository) Find(ctx context.Context, provider string, userID int) (*model.OAuthCredential, error) {
	query := `
        SELECT provider, user_id, access_token, refresh_token, expires_at, scope,
               account_email, account_name, created_at, updated_at
        FROM oauth_credentials
        WHERE provider = $1 AND user_id = $2
    `
	var c model.OAuthCredential
	err := r.db.QueryRow(ctx, query, provider, userID).Scan(
		&c.Provider,
		&c.UserID,
		&c.AccessToken,
		&c.RefreshToken,
		&c.ExpiresAt,
		&c.Scope,
		&c.AccountEmail,
		&c.AccountName,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpdateTokens stores a refreshed token pair. The refresh token only changes
// when the provider rotated it.
func (r *CredentialRepository) UpdateTokens(ctx context.Context, c *model.OAuthCredential) error {
	query := `
        UPDATE oauth_credentials
        SET access_token = $1, refresh_token = $2, expires_at = $3, updated_at = NOW()
        WHERE provider = $4 AND user_id = $5
    `
	_, err := r.db.Exec(ctx, query,
		c.AccessToken,
		c.RefreshToken,
		c.ExpiresAt,
		c.Provider,
		c.UserID,
	)
	return err
}

// Delete removes the credential for (provider, user).
func (r *CredentialRepository) Delete(ctx context.Context, provider string, userID int) error {
	query := `
        DELETE FROM oauth_credentials
        WHERE provider = $1 AND user_id = $2
    `
	_, err := r.db.Exec(ctx, query, provider, userID)
	return err
}

// ListProviders returns the providers the user currently has credentials for.
func (r *CredentialRepository) ListProviders(ctx context.Context, userID int) ([]string, error) {
	query := `
        SELECT provider
        FROM oauth_credentials
        WHERE user_id = $1
        ORDER BY provider
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	providers := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}
