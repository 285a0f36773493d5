package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/resource-booking/internal/availability"
	"github.com/iliyamo/resource-booking/internal/model"
)

// AvailabilityStore is the read side of the availability engine.  It
// runs against the pool for searches and against a locked transaction
// on the booking write path (see BookingRepo.WithResourceLock).
type AvailabilityStore struct {
	q dbtx
}

// NewAvailabilityStore returns a store reading straight from db.
func NewAvailabilityStore(db *sql.DB) *AvailabilityStore { return &AvailabilityStore{q: db} }

// ListBookings returns the bookings overlapping within ordered by id,
// optionally for one resource.  The predicate is the overlap rule of
// availability.Overlaps and is served by idx_bookings_window.
func (s *AvailabilityStore) ListBookings(ctx context.Context, resourceID *uint64, within availability.Window) ([]model.Booking, error) {
	return listBookings(ctx, s.q, BookingFilter{ResourceID: resourceID, From: within.Start, To: within.End})
}

// ListResources returns resources with their type names, optionally
// only the one with id resourceID.
func (s *AvailabilityStore) ListResources(ctx context.Context, resourceID *uint64) ([]model.Resource, error) {
	q := resourceSelect
	var args []any
	if resourceID != nil {
		q += ` WHERE r.id = ?`
		args = append(args, *resourceID)
	}
	q += ` ORDER BY r.id`
	return scanResources(s.q.QueryContext(ctx, q, args...))
}
