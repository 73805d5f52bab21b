// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// booking service and handlers to distinguish between different failure
// scenarios. For example, ErrForbidden indicates that the current user is
// not allowed to touch an order owned by someone else, while
// ErrSeatsContended signals that another transaction currently holds a
// row lock on one of the requested seats.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because
// the row is no longer in the state the caller expected.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a lookup by primary key yields no rows.
var ErrNotFound = errors.New("not found")

// ErrSeatsContended is returned when a NOWAIT row claim fails because a
// concurrent transaction already holds one of the rows.
var ErrSeatsContended = errors.New("seats contended")

// MySQL server error numbers that mean "somebody else has the row".
const (
	erLockWaitTimeout uint16 = 1205
	erLockDeadlock    uint16 = 1213
	erLockNowait      uint16 = 3572
)

// IsLockContention reports whether err is MySQL refusing or abandoning a
// row lock. NOWAIT failures are the normal case; lock wait timeouts and
// deadlock victims are treated the same way so callers see one kind.
func IsLockContention(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case erLockNowait, erLockWaitTimeout, erLockDeadlock:
		return true
	}
	return false
}

// classify maps driver lock errors onto ErrSeatsContended and passes
// everything else through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsLockContention(err) {
		return errors.Join(ErrSeatsContended, err)
	}
	return err
}
