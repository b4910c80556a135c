package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/lib/pq"
)

// Common errors
var (
	ErrRepositoryNotFound    = fmt.Errorf("repository not found")
	ErrInvalidInput          = fmt.Errorf("invalid input")
	ErrInvalidQueryParameter = fmt.Errorf("invalid query parameter")
	ErrDatabaseConnection    = fmt.Errorf("database connection error")
	ErrTransactionFailed     = fmt.Errorf("transaction failed")
	ErrQueryTimeout          = fmt.Errorf("store call timed out")
)

// classify marks connectivity failures with ErrDatabaseConnection so
// callers can tell an unavailable store from a failed statement. An
// exceeded deadline is marked ErrQueryTimeout instead.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrDatabaseConnection) || errors.Is(err, ErrQueryTimeout) {
		return err
	}
	// context.DeadlineExceeded is also a net.Error, so it goes first.
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrQueryTimeout, err)
	}
	if isConnectionError(err) {
		return fmt.Errorf("%w: %w", ErrDatabaseConnection, err)
	}
	return err
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection exception, 57P0x: server shutting down
		switch {
		case pqErr.Code.Class() == "08":
			return true
		case pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
