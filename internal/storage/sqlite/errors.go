package sqlite

import (
	"errors"
	"fmt"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mmynk/ledgerly/internal/storage"
)

// isUniqueViolation reports whether err is a primary key or unique
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// insertError wraps an insert failure, mapping duplicates to storage.ErrExists.
func insertError(what, id string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrExists)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}
