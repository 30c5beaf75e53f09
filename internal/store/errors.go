package store

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrClosed is returned by operations on a closed Conn
	ErrClosed = errors.New("store: connection closed")

	errVersionTooLow    = errors.New("store: requested version is lower than current")
	errBlocked          = errors.New("store: upgrade blocked")
	errMissingPartition = errors.New("store: partition missing")
)

func sqliteCode(err error) (int, bool) {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return 0, false
	}
	return serr.Code() & 0xff, true
}

// isBlocked reports lock contention that outlived the busy timeout
func isBlocked(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED)
}

func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errMissingPartition) {
		return true
	}
	return strings.Contains(err.Error(), "no such table")
}
