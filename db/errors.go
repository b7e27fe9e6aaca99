package db

import (
	"database/sql"
	"strings"

	"github.com/teranos/termforge/errors"
)

// ErrDatabaseClosed is returned when a store is used after Close.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is gone:
// ErrDatabaseClosed, sql.ErrConnDone, or database/sql's unexported
// "database is closed" error, which can only be matched by message.
func IsDatabaseClosed(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.IsAny(err, ErrDatabaseClosed, sql.ErrConnDone):
		return true
	default:
		return strings.Contains(err.Error(), "database is closed")
	}
}
