package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"starblog/internal/common"
	"starblog/internal/domain/model"
)

// PostRepository never writes Post.Rating after creation; see RatingRepository.
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	FindByID(ctx context.Context, id string) (*model.Post, error)
	ListByUser(ctx context.Context, userID string) ([]model.Post, error)
	// ListAll is unpaginated.
	ListAll(ctx context.Context) ([]model.Post, error)
}

type pgPostRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPgPostRepository(db *sql.DB, timeout time.Duration) PostRepository {
	return &pgPostRepository{db: db, timeout: timeout}
}

const postColumns = `id, title, slug, content, rating, user_id, created_at`

func (r *pgPostRepository) Create(ctx context.Context, p *model.Post) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `INSERT INTO posts (id, title, slug, content, rating, user_id)
	          VALUES ($1, $2, $3, $4, 0, $5)
	          RETURNING rating, created_at`
	err := r.db.QueryRowContext(ctx, query, p.ID, p.Title, p.Slug, p.Content, p.UserID).Scan(&p.Rating, &p.CreatedAt)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return fmt.Errorf("owner %s: %w", p.UserID, common.ErrInvalidCredentials)
		}
		return storageError("pgPostRepository.Create", err)
	}
	return nil
}

func (r *pgPostRepository) FindByID(ctx context.Context, id string) (*model.Post, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	p := &model.Post{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Title, &p.Slug, &p.Content, &p.Rating, &p.UserID, &p.CreatedAt,
	)
	if err != nil {
		if notFound(err) {
			return nil, common.ErrPostNotFound
		}
		return nil, storageError("pgPostRepository.FindByID", err)
	}
	return p, nil
}

func (r *pgPostRepository) ListByUser(ctx context.Context, userID string) ([]model.Post, error) {
	return r.list(ctx, "pgPostRepository.ListByUser",
		`SELECT `+postColumns+` FROM posts WHERE user_id = $1 ORDER BY created_at, id`, userID)
}

func (r *pgPostRepository) ListAll(ctx context.Context) ([]model.Post, error) {
	return r.list(ctx, "pgPostRepository.ListAll",
		`SELECT `+postColumns+` FROM posts ORDER BY created_at, id`)
}

func (r *pgPostRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]model.Post, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(op, err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Rating, &p.UserID, &p.CreatedAt); err != nil {
			return nil, storageError(op, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(op, err)
	}
	return posts, nil
}
