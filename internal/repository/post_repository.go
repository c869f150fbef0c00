package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"channelpress/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, p *models.Post) (string, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Post, error)
	SetStatus(ctx context.Context, id string, status models.PostStatus) error
	Remove(ctx context.Context, id string) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, p *models.Post) (string, error) {
	media, err := json.Marshal(p.Media)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	thread, err := json.Marshal(p.Thread)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	var insertQuery = `
			INSERT INTO posts(
				id,
				organization_id,
				variant,
				text,
				media,
				thread,
				status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`

	args := []interface{}{p.ID, p.OrganizationID, p.Variant, p.Text, media, thread, p.Status}

	var id string
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

func scanPost(row interface{ Scan(...interface{}) error }) (*models.Post, error) {
	var p models.Post
	var media, thread []byte
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Variant, &p.Text, &media, &thread,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &p.Media); err != nil {
			return nil, err
		}
	}
	if len(thread) > 0 {
		if err := json.Unmarshal(thread, &p.Thread); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT id, organization_id, variant, text, media, thread, status, created_at, updated_at
		FROM posts WHERE id = $1`
	p, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return p, nil
}

func (r *postRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.Post, error) {
	query := `SELECT id, organization_id, variant, text, media, thread, status, created_at, updated_at
		FROM posts WHERE organization_id = $1 AND status != $2 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, orgID, models.PostStatusArchived)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return posts, nil
}

func (r *postRepository) SetStatus(ctx context.Context, id string, status models.PostStatus) error {
	query := `UPDATE posts SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
