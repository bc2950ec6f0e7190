package gorm

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/thebtf/oracle/internal/db"
)

// pgUniqueViolation is the SQLSTATE of a unique constraint violation.
const pgUniqueViolation = "23505"

// translateError maps driver errors onto the db package sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return db.ErrDuplicate
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return db.ErrDuplicate
	}

	// SQLite (tests) without a translator reports constraint failures by text.
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return db.ErrDuplicate
	}
	return err
}
