package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

// notFound maps sql.ErrNoRows onto the domain sentinel and passes any other
// error through unchanged.
func notFound(err error, sentinel error, subject string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, subject)
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
