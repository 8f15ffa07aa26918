package repository

import (
	"errors"
	"fmt"

	"catalog-service/internal/importer"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL unique violation error code
const uniqueViolationCode = "23505"

// translateError maps driver errors onto the importer sentinels so callers can
// classify them with errors.Is
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", importer.ErrNotFound, err)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", importer.ErrUniqueViolation, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
