// Package repository holds the MySQL-backed stores used by the booking
// API together with the sentinel errors they return.  Handlers and
// services branch on these values with errors.Is; raw driver errors
// never cross the package boundary for the cases listed here.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation on a
// record they do not own.  Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as deleting a resource that still has
// bookings or inserting a duplicate type name.  Handlers translate this
// into HTTP 409.
var ErrConflict = errors.New("conflict")

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailExists          = errors.New("email already exists")
	ErrResourceNotFound     = errors.New("resource not found")
	ErrResourceTypeNotFound = errors.New("resource type not found")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrRefreshInvalid       = errors.New("refresh token invalid or expired")
)

// ErrBusy is returned when a locked write kept losing to concurrent
// writers (deadlock or lock wait timeout) after every retry.  Handlers
// translate this into HTTP 503.
var ErrBusy = errors.New("resource busy, try again")

// MySQL server error numbers we classify.
const (
	errDupEntry        = 1062
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errCheckViolated   = 3819
)

func mysqlCode(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool { return mysqlCode(err) == errDupEntry }

// isReferenced reports a delete blocked by an ON DELETE RESTRICT key.
func isReferenced(err error) bool { return mysqlCode(err) == errRowIsReferenced }

// isMissingParent reports an insert/update pointing at a row that does
// not exist.
func isMissingParent(err error) bool { return mysqlCode(err) == errNoReferencedRow }

// isCheckViolation reports a row rejected by a CHECK constraint.
func isCheckViolation(err error) bool { return mysqlCode(err) == errCheckViolated }

// isRetryable reports errors after which InnoDB has rolled back (or
// should roll back) the transaction and a fresh attempt may succeed.
func isRetryable(err error) bool {
	switch mysqlCode(err) {
	case errDeadlock, errLockWaitTimeout:
		return true
	}
	return false
}
