package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/okian/crease/internal/domain/ledger"
)

// ErrPathRequired is returned when a SQLite store is opened without a path.
var ErrPathRequired = errors.New("storage path is required")

const pgUniqueViolation = pq.ErrorCode("23505")

// isUniqueViolation reports a primary key or unique constraint failure from
// either driver.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == pgUniqueViolation
	}
	return false
}

// mapErr turns constraint failures into ledger.ErrConflict.
func mapErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, ledger.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
