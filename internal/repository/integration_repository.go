package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"channelpress/internal/models"
)

// ErrTokenConflict is returned by SetToken when the stored access token no
// longer matches the caller's snapshot. Another refresh won the race; the
// caller should re-read instead of retrying the write.
var ErrTokenConflict = errors.New("stored token changed since it was read")

type IntegrationRepository interface {
	Create(ctx context.Context, tx *sql.Tx, si *models.SocialIntegration) (string, error)
	GetByID(ctx context.Context, id string) (*models.SocialIntegration, error)
	SetToken(ctx context.Context, id, oldAccessToken string, si *models.SocialIntegration) error
	ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialIntegration, error)
	Remove(ctx context.Context, id string) error
}

type integrationRepository struct {
	db *sql.DB
}

func NewIntegrationRepository(db *sql.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) Create(ctx context.Context, tx *sql.Tx, si *models.SocialIntegration) (string, error) {
	var insertQuery = `
			INSERT INTO social_integrations(
				id,
				platform,
				account_id,
				access_token,
				refresh_token,
				token_secret,
				token_expires_at,
				scope,
				metadata
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`

	args := []interface{}{
		si.ID,
		si.Platform,
		si.AccountID,
		si.AccessToken,
		si.RefreshToken,
		si.TokenSecret,
		si.TokenExpiresAt,
		si.Scope,
		si.Metadata,
	}

	var id string
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, insertQuery, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, insertQuery, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return id, nil
}

func (r *integrationRepository) GetByID(ctx context.Context, id string) (*models.SocialIntegration, error) {
	query := `SELECT id, platform, account_id, access_token, refresh_token, token_secret,
		token_expires_at, scope, metadata, created_at, updated_at
		FROM social_integrations WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var si models.SocialIntegration
	err := row.Scan(&si.ID, &si.Platform, &si.AccountID, &si.AccessToken, &si.RefreshToken,
		&si.TokenSecret, &si.TokenExpiresAt, &si.Scope, &si.Metadata, &si.CreatedAt, &si.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &si, nil
}

// SetToken swaps credentials with a compare-and-set on the previous access
// token so two concurrent refreshes cannot overwrite each other.
func (r *integrationRepository) SetToken(ctx context.Context, id, oldAccessToken string, si *models.SocialIntegration) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateTokenQuery := `
		UPDATE social_integrations
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2;
	`
	result, err := tx.ExecContext(ctx, updateTokenQuery, id, oldAccessToken, si.AccessToken, si.RefreshToken, si.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("token refresh lost the race", "integration_id", id)
		return ErrTokenConflict
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListExpiring returns integrations whose tokens expire before the cutoff,
// already expired rows included. Non-expiring integrations store a zero
// timestamp and are skipped.
func (r *integrationRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialIntegration, error) {
	query := `SELECT id, platform, account_id, access_token, refresh_token, token_secret, token_expires_at
		FROM social_integrations
		WHERE token_expires_at > '0001-01-01' AND token_expires_at < $1`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var integrations []*models.SocialIntegration
	for rows.Next() {
		var si models.SocialIntegration
		err := rows.Scan(&si.ID, &si.Platform, &si.AccountID, &si.AccessToken,
			&si.RefreshToken, &si.TokenSecret, &si.TokenExpiresAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		integrations = append(integrations, &si)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return integrations, nil
}

func (r *integrationRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM social_integrations WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
