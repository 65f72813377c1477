package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"starblog/internal/common"
	"starblog/internal/domain/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type pgUserRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPgUserRepository(db *sql.DB, timeout time.Duration) UserRepository {
	return &pgUserRepository{db: db, timeout: timeout}
}

func (r *pgUserRepository) Create(ctx context.Context, user *model.User) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `INSERT INTO users (id, username, hashed_password)
	          VALUES ($1, $2, $3)
	          RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, user.ID, user.Username, user.HashedPassword).Scan(&user.CreatedAt)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgUniqueViolation {
			return fmt.Errorf("user %q: %w", user.Username, common.ErrDuplicateUsername)
		}
		return storageError("pgUserRepository.Create", err)
	}
	return nil
}

func (r *pgUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "pgUserRepository.FindByUsername",
		`SELECT id, username, hashed_password, created_at FROM users WHERE username = $1`, username)
}

func (r *pgUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "pgUserRepository.FindByID",
		`SELECT id, username, hashed_password, created_at FROM users WHERE id = $1`, id)
}

func (r *pgUserRepository) findOne(ctx context.Context, op, query string, arg string) (*model.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.HashedPassword, &user.CreatedAt,
	)
	if err != nil {
		if notFound(err) {
			return nil, common.ErrNotFound
		}
		return nil, storageError(op, err)
	}
	return user, nil
}
