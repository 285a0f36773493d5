package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/resource-booking/internal/availability"
	"github.com/iliyamo/resource-booking/internal/model"
)

// BookingRepo provides persistence for bookings.  All timestamps are
// stored and returned in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookingFilter narrows List.  Nil fields do not filter.  When both From
// and To are set only bookings overlapping [From, To) are returned.
type BookingFilter struct {
	ResourceID *uint64
	UserID     *uint64
	From       time.Time
	To         time.Time
}

// BookingTx is the view of the database handed to WithResourceLock
// callbacks.  Reads made through it happen after the resource row lock
// is taken, so an overlap check cannot race with another writer on the
// same resource.
type BookingTx interface {
	ListBookings(ctx context.Context, resourceID *uint64, within availability.Window) ([]model.Booking, error)
	ListResources(ctx context.Context, resourceID *uint64) ([]model.Resource, error)
	// Lock reads booking id and holds its row lock until the transaction ends.
	Lock(ctx context.Context, id uint64) (model.Booking, error)
	Insert(ctx context.Context, b *model.Booking) error
	Update(ctx context.Context, b *model.Booking) error
}

const bookingColumns = `id, resource_id, user_id, starts_at, ends_at, created_at, updated_at`

// lockTxOptions is the isolation used by WithResourceLock.  Writers of one
// resource are ordered by the resource row lock; plain reads after it see
// every committed booking and take no gap locks.
var lockTxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// lockAttempts bounds WithResourceLock retries after a deadlock or lock
// wait timeout.
const lockAttempts = 3

// WithResourceLock opens a transaction, takes a row lock on the resource
// with id resourceID and runs fn.  The transaction commits when fn
// returns nil and rolls back otherwise.  ErrResourceNotFound is returned
// when the resource does not exist.  Deadlocks and lock wait timeouts
// rerun the whole transaction, so fn may be called more than once;
// ErrBusy is returned when every attempt lost.
func (r *BookingRepo) WithResourceLock(ctx context.Context, resourceID uint64, fn func(BookingTx) error) error {
	var err error
	for attempt := 1; attempt <= lockAttempts; attempt++ {
		err = r.lockOnce(ctx, resourceID, fn)
		if !isRetryable(err) {
			return err
		}
		log.WithError(err).WithFields(log.Fields{"resource_id": resourceID, "attempt": attempt}).
			Warn("booking tx: lock contention, retrying")
	}
	return fmt.Errorf("%w: %w", ErrBusy, err)
}

func (r *BookingRepo) lockOnce(ctx context.Context, resourceID uint64, fn func(BookingTx) error) error {
	tx, err := r.db.BeginTx(ctx, lockTxOptions)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id uint64
	err = tx.QueryRowContext(ctx, `SELECT id FROM resources WHERE id = ? FOR UPDATE`, resourceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrResourceNotFound
	}
	if err != nil {
		return err
	}

	if err := fn(&bookingTx{AvailabilityStore: AvailabilityStore{q: tx}, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type bookingTx struct {
	AvailabilityStore
	tx *sql.Tx
}

func (t *bookingTx) Lock(ctx context.Context, id uint64) (model.Booking, error) {
	var b model.Booking
	err := t.tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id).Scan(
		&b.ID, &b.ResourceID, &b.UserID, &b.StartsAt, &b.EndsAt, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}

// Insert adds b and fills in its ID and timestamps.
func (t *bookingTx) Insert(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (resource_id, user_id, starts_at, ends_at) VALUES (?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, b.ResourceID, b.UserID, b.StartsAt.UTC(), b.EndsAt.UTC())
	if err != nil {
		return writeErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return t.reload(ctx, b)
}

// Update rewrites resource, start and end of the booking with b.ID.  The
// caller is expected to hold the row through Lock.
func (t *bookingTx) Update(ctx context.Context, b *model.Booking) error {
	const q = `UPDATE bookings SET resource_id = ?, starts_at = ?, ends_at = ? WHERE id = ?`
	if _, err := t.tx.ExecContext(ctx, q, b.ResourceID, b.StartsAt.UTC(), b.EndsAt.UTC(), b.ID); err != nil {
		return writeErr(err)
	}
	err := t.reload(ctx, b)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookingNotFound
	}
	return err
}

// writeErr classifies errors from booking inserts and updates.
func writeErr(err error) error {
	switch {
	case isMissingParent(err):
		return ErrUserNotFound
	case isCheckViolation(err):
		return availability.ErrInvalidWindow
	}
	return err
}

func (t *bookingTx) reload(ctx context.Context, b *model.Booking) error {
	return t.tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, b.ID).Scan(
		&b.ID, &b.ResourceID, &b.UserID, &b.StartsAt, &b.EndsAt, &b.CreatedAt, &b.UpdatedAt)
}

// GetByID returns a booking or ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	var b model.Booking
	err := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id).Scan(
		&b.ID, &b.ResourceID, &b.UserID, &b.StartsAt, &b.EndsAt, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}

// List returns bookings matching f ordered by id.
func (r *BookingRepo) List(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	return listBookings(ctx, r.db, f)
}

func listBookings(ctx context.Context, q dbtx, f BookingFilter) ([]model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []any
	if f.ResourceID != nil {
		query += ` AND resource_id = ?`
		args = append(args, *f.ResourceID)
	}
	if f.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *f.UserID)
	}
	if !f.From.IsZero() && !f.To.IsZero() {
		query += ` AND starts_at < ? AND ends_at > ?`
		args = append(args, f.To.UTC(), f.From.UTC())
	}
	query += ` ORDER BY id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.ResourceID, &b.UserID, &b.StartsAt, &b.EndsAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a booking.
func (r *BookingRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}
