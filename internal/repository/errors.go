package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"subbox_backend/internal/subscription"
)

const pgUniqueViolation = "23505"

// translate maps driver errors onto the store contract of the lifecycle
// manager. Unknown errors pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", subscription.ErrRecordNotFound, err)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %w", subscription.ErrUniqueViolation, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
