package model

import "time"

// Booking reserves one resource for one user over the half-open
// interval [StartsAt, EndsAt).  StartsAt must be strictly before
// EndsAt.  All times are stored and compared in UTC.
//
// Fields:
//  ID         – primary key identifier.
//  ResourceID – the booked resource.
//  UserID     – the user holding the booking.
//  StartsAt   – inclusive start of the interval.
//  EndsAt     – exclusive end of the interval.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Booking struct {
	ID         uint64    // bookings.id
	ResourceID uint64    // bookings.resource_id
	UserID     uint64    // bookings.user_id
	StartsAt   time.Time // bookings.starts_at
	EndsAt     time.Time // bookings.ends_at
	CreatedAt  time.Time // bookings.created_at
	UpdatedAt  time.Time // bookings.updated_at
}
