package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"time"

	"starblog/internal/common"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes the repositories translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRep      = "22P02"
	pgQueryCanceled       = "57014"
)

// DefaultQueryTimeout bounds a repository call when none is configured.
const DefaultQueryTimeout = 5 * time.Second

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, d)
}

// storageError wraps err for op, tagging timeouts and lost connections as
// ErrTransientStorage so callers can retry.
func storageError(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %v", op, common.ErrTransientStorage, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgQueryCanceled
}

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// notFound reports whether err means no row can match: either no rows came
// back or the key failed to cast to the column type.
func notFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	code, _ := pgErrorCode(err)
	return code == pgInvalidTextRep
}

func sameAverage(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
