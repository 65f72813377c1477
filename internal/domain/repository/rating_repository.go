package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"starblog/internal/common"
	"starblog/internal/domain/model"
)

type RatingRepository interface {
	// RecordRating inserts rating and rewrites the post's average in one
	// atomic unit. It fails with ErrPostNotFound or ErrAlreadyRated.
	RecordRating(ctx context.Context, rating *model.Rating) (float64, error)
	// GetAverage returns the stored posts.rating column.
	GetAverage(ctx context.Context, postID string) (float64, error)
	// Reconcile recomputes the average from the ratings table and rewrites
	// posts.rating if it drifted.
	Reconcile(ctx context.Context, postID string) (*model.RatingAuditResult, error)
}

type pgRatingRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPgRatingRepository(db *sql.DB, timeout time.Duration) RatingRepository {
	return &pgRatingRepository{db: db, timeout: timeout}
}

const ratingsPostFK = "ratings_post_id_fkey"

func (r *pgRatingRepository) RecordRating(ctx context.Context, rating *model.Rating) (float64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageError("pgRatingRepository.RecordRating begin", err)
	}
	defer tx.Rollback() // Rollback if not committed

	// The row lock serializes raters of the same post, so the average
	// written below always includes every committed rating.
	var lockedID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM posts WHERE id = $1 FOR UPDATE`, rating.PostID).Scan(&lockedID)
	if err != nil {
		if notFound(err) {
			return 0, common.ErrPostNotFound
		}
		return 0, storageError("pgRatingRepository.RecordRating lock", err)
	}

	insert := `INSERT INTO ratings (id, post_id, user_id, value)
	           VALUES ($1, $2, $3, $4)
	           RETURNING created_at`
	err = tx.QueryRowContext(ctx, insert, rating.ID, rating.PostID, rating.UserID, rating.Value).Scan(&rating.CreatedAt)
	if err != nil {
		switch code, constraint := pgErrorCode(err); {
		case code == pgUniqueViolation:
			return 0, common.ErrAlreadyRated
		case code == pgForeignKeyViolation && constraint == ratingsPostFK:
			return 0, common.ErrPostNotFound
		case code == pgForeignKeyViolation:
			return 0, fmt.Errorf("rater %s: %w", rating.UserID, common.ErrInvalidCredentials)
		}
		return 0, storageError("pgRatingRepository.RecordRating insert", err)
	}

	var average float64
	update := `UPDATE posts
	           SET rating = (SELECT COALESCE(AVG(value), 0)::double precision FROM ratings WHERE post_id = $1)
	           WHERE id = $1
	           RETURNING rating`
	if err := tx.QueryRowContext(ctx, update, rating.PostID).Scan(&average); err != nil {
		return 0, storageError("pgRatingRepository.RecordRating update average", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, storageError("pgRatingRepository.RecordRating commit", err)
	}
	return average, nil
}

func (r *pgRatingRepository) GetAverage(ctx context.Context, postID string) (float64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var average float64
	err := r.db.QueryRowContext(ctx, `SELECT rating FROM posts WHERE id = $1`, postID).Scan(&average)
	if err != nil {
		if notFound(err) {
			return 0, common.ErrPostNotFound
		}
		return 0, storageError("pgRatingRepository.GetAverage", err)
	}
	return average, nil
}

func (r *pgRatingRepository) Reconcile(ctx context.Context, postID string) (*model.RatingAuditResult, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("pgRatingRepository.Reconcile begin", err)
	}
	defer tx.Rollback()

	result := &model.RatingAuditResult{PostID: postID}
	err = tx.QueryRowContext(ctx, `SELECT rating FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&result.Stored)
	if err != nil {
		if notFound(err) {
			result.Status = model.AuditStatusMissing
			return result, nil
		}
		return nil, storageError("pgRatingRepository.Reconcile lock", err)
	}

	aggregate := `SELECT COUNT(*), COALESCE(AVG(value), 0)::double precision FROM ratings WHERE post_id = $1`
	if err := tx.QueryRowContext(ctx, aggregate, postID).Scan(&result.Count, &result.Expected); err != nil {
		return nil, storageError("pgRatingRepository.Reconcile aggregate", err)
	}

	result.Status = model.AuditStatusConsistent
	if !sameAverage(result.Stored, result.Expected) {
		if _, err := tx.ExecContext(ctx, `UPDATE posts SET rating = $1 WHERE id = $2`, result.Expected, postID); err != nil {
			return nil, storageError("pgRatingRepository.Reconcile repair", err)
		}
		result.Status = model.AuditStatusRepaired
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("pgRatingRepository.Reconcile commit", err)
	}
	return result, nil
}
