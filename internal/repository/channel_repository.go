package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"channelpress/internal/models"
	"channelpress/internal/platform"
)

type ChannelRepository interface {
	Create(ctx context.Context, tx *sql.Tx, ch *models.Channel) (string, error)
	GetByID(ctx context.Context, id string) (*models.Channel, error)
	GetByPlatformAccount(ctx context.Context, orgID string, plat platform.Platform, accountID string) (*models.Channel, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Channel, error)
	UpdateProfile(ctx context.Context, tx *sql.Tx, ch *models.Channel) error
	SetStatus(ctx context.Context, id string, status models.ChannelStatus) error
	Remove(ctx context.Context, id string) error
}

type channelRepository struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) ChannelRepository {
	return &channelRepository{db: db}
}

const channelColumns = `id, organization_id, platform, account_id, name, username,
	profile_picture_url, profile_url, status, integration_id, created_at, updated_at`

func scanChannel(row interface{ Scan(...interface{}) error }) (*models.Channel, error) {
	var ch models.Channel
	err := row.Scan(&ch.ID, &ch.OrganizationID, &ch.Platform, &ch.AccountID, &ch.Name,
		&ch.Username, &ch.ProfilePicture, &ch.ProfileURL, &ch.Status, &ch.IntegrationID,
		&ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *channelRepository) Create(ctx context.Context, tx *sql.Tx, ch *models.Channel) (string, error) {
	var insertQuery = `
			INSERT INTO channels(
				id,
				organization_id,
				platform,
				account_id,
				name,
				username,
				profile_picture_url,
				profile_url,
				status,
				integration_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`

	args := []interface{}{
		ch.ID,
		ch.OrganizationID,
		ch.Platform,
		ch.AccountID,
		ch.Name,
		ch.Username,
		ch.ProfilePicture,
		ch.ProfileURL,
		ch.Status,
		ch.IntegrationID,
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

func (r *channelRepository) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`
	ch, err := scanChannel(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return ch, nil
}

func (r *channelRepository) GetByPlatformAccount(ctx context.Context, orgID string, plat platform.Platform, accountID string) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels
		WHERE organization_id = $1 AND platform = $2 AND account_id = $3`
	ch, err := scanChannel(r.db.QueryRowContext(ctx, query, orgID, plat, accountID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return ch, nil
}

func (r *channelRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE organization_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		channels = append(channels, ch)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return channels, nil
}

// UpdateProfile refreshes display fields after a reconnect and resets the
// channel to active. Identity fields never change here.
func (r *channelRepository) UpdateProfile(ctx context.Context, tx *sql.Tx, ch *models.Channel) error {
	query := `
		UPDATE channels
		SET
			name = $2,
			username = $3,
			profile_picture_url = $4,
			profile_url = $5,
			status = $6,
			integration_id = $7,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	args := []interface{}{ch.ID, ch.Name, ch.Username, ch.ProfilePicture, ch.ProfileURL, ch.Status, ch.IntegrationID}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *channelRepository) SetStatus(ctx context.Context, id string, status models.ChannelStatus) error {
	query := `UPDATE channels SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *channelRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM channels WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
