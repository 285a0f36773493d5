// Package queue defines the booking event payload exchanged over
// RabbitMQ and the background consumer that records it.
package queue

import "time"

// QueueName is the durable queue booking events are published to.
const QueueName = "booking.events"

// Event types.
const (
	BookingCreated   = "booking.created"
	BookingUpdated   = "booking.updated"
	BookingCancelled = "booking.cancelled"
)

// BookingEvent is published after a booking is created, changed or
// deleted.  It carries enough for downstream consumers to log or
// notify without querying the primary database.
type BookingEvent struct {
	Type       string    `json:"type"`
	BookingID  uint64    `json:"booking_id"`
	ResourceID uint64    `json:"resource_id"`
	UserID     uint64    `json:"user_id"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	OccurredAt time.Time `json:"occurred_at"`
}
