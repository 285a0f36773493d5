// Package service holds the booking write path: window validation,
// ownership rules, the locked overlap check and event publication.
package service

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/resource-booking/internal/availability"
	"github.com/iliyamo/resource-booking/internal/model"
	"github.com/iliyamo/resource-booking/internal/queue"
	"github.com/iliyamo/resource-booking/internal/repository"
)

// ErrBookingConflict is returned when the requested interval overlaps an
// existing booking of the same resource.
var ErrBookingConflict = errors.New("resource is already booked for the requested time")

// BookingStore is the persistence the service needs.  *repository.BookingRepo
// satisfies it.
type BookingStore interface {
	WithResourceLock(ctx context.Context, resourceID uint64, fn func(repository.BookingTx) error) error
	GetByID(ctx context.Context, id uint64) (model.Booking, error)
	List(ctx context.Context, f repository.BookingFilter) ([]model.Booking, error)
	Delete(ctx context.Context, id uint64) error
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID uint64
	Admin  bool
}

func (a Actor) can(userID uint64) bool { return a.Admin || a.UserID == userID }

// BookingChanges is a partial update.  Nil fields keep the stored value.
type BookingChanges struct {
	ResourceID *uint64
	StartsAt   *time.Time
	EndsAt     *time.Time
}

func (ch BookingChanges) apply(b model.Booking) model.Booking {
	if ch.ResourceID != nil {
		b.ResourceID = *ch.ResourceID
	}
	if ch.StartsAt != nil {
		b.StartsAt = storedTime(*ch.StartsAt)
	}
	if ch.EndsAt != nil {
		b.EndsAt = storedTime(*ch.EndsAt)
	}
	return b
}

// storedTime is t as the bookings table keeps it: UTC, whole seconds.
// Windows are validated on stored values, so [10:00:00, 10:00:00.4) is
// rejected as empty.
func storedTime(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }

// maxRelocks bounds how often Update follows a booking that a concurrent
// update keeps moving to another resource.
const maxRelocks = 3

var errMoved = errors.New("booking moved to another resource")

// BookingService coordinates booking writes.
type BookingService struct {
	store BookingStore
	pub   Publisher
	now   func() time.Time
}

// NewBookingService wires a service.  A nil publisher disables events.
func NewBookingService(store BookingStore, pub Publisher) *BookingService {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &BookingService{store: store, pub: pub, now: func() time.Time { return time.Now().UTC() }}
}

// Create books b.ResourceID for [b.StartsAt, b.EndsAt).  A zero UserID
// books for the actor; only admins may book on behalf of someone else.
func (s *BookingService) Create(ctx context.Context, actor Actor, b model.Booking) (model.Booking, error) {
	if b.UserID == 0 {
		b.UserID = actor.UserID
	}
	if !actor.can(b.UserID) {
		return model.Booking{}, repository.ErrForbidden
	}
	b.StartsAt, b.EndsAt = storedTime(b.StartsAt), storedTime(b.EndsAt)
	if !b.StartsAt.Before(b.EndsAt) {
		return model.Booking{}, availability.ErrInvalidWindow
	}

	err := s.store.WithResourceLock(ctx, b.ResourceID, func(tx repository.BookingTx) error {
		booked, err := availability.New(tx).IsResourceBooked(ctx, b.ResourceID, b.StartsAt, b.EndsAt)
		if err != nil {
			return err
		}
		if booked {
			return ErrBookingConflict
		}
		return tx.Insert(ctx, &b)
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.publish(ctx, queue.BookingCreated, b)
	return b, nil
}

// Update applies ch to booking id.  The booking's own interval never
// counts as a conflict; every other booking on the target resource does.
// The booking is re-read under the target resource's lock; when a
// concurrent update moved it in between, the lock is taken again on the
// resource it now belongs to.
func (s *BookingService) Update(ctx context.Context, actor Actor, id uint64, ch BookingChanges) (model.Booking, error) {
	for attempt := 0; attempt < maxRelocks; attempt++ {
		snap, err := s.store.GetByID(ctx, id)
		if err != nil {
			return model.Booking{}, err
		}
		if !actor.can(snap.UserID) {
			return model.Booking{}, repository.ErrForbidden
		}
		next := ch.apply(snap)
		if !next.StartsAt.Before(next.EndsAt) {
			return model.Booking{}, availability.ErrInvalidWindow
		}
		target := next.ResourceID

		var out model.Booking
		err = s.store.WithResourceLock(ctx, target, func(tx repository.BookingTx) error {
			cur, err := tx.Lock(ctx, id)
			if err != nil {
				return err
			}
			b := ch.apply(cur)
			if b.ResourceID != target {
				return errMoved
			}
			if !b.StartsAt.Before(b.EndsAt) {
				return availability.ErrInvalidWindow
			}
			booked, err := availability.New(tx).IsResourceBookedExcluding(ctx, b.ResourceID, b.ID, b.StartsAt, b.EndsAt)
			if err != nil {
				return err
			}
			if booked {
				return ErrBookingConflict
			}
			if err := tx.Update(ctx, &b); err != nil {
				return err
			}
			out = b
			return nil
		})
		if errors.Is(err, errMoved) {
			continue
		}
		if err != nil {
			return model.Booking{}, err
		}
		s.publish(ctx, queue.BookingUpdated, out)
		return out, nil
	}
	return model.Booking{}, repository.ErrConflict
}

// Get returns booking id if the actor may see it.
func (s *BookingService) Get(ctx context.Context, actor Actor, id uint64) (model.Booking, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if !actor.can(b.UserID) {
		return model.Booking{}, repository.ErrForbidden
	}
	return b, nil
}

// List returns bookings matching f.  Non-admins only ever see their own;
// asking for another user's bookings is forbidden.
func (s *BookingService) List(ctx context.Context, actor Actor, f repository.BookingFilter) ([]model.Booking, error) {
	if !actor.Admin {
		if f.UserID != nil && *f.UserID != actor.UserID {
			return nil, repository.ErrForbidden
		}
		uid := actor.UserID
		f.UserID = &uid
	}
	return s.store.List(ctx, f)
}

// Delete cancels booking id.
func (s *BookingService) Delete(ctx context.Context, actor Actor, id uint64) error {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.can(b.UserID) {
		return repository.ErrForbidden
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, queue.BookingCancelled, b)
	return nil
}

func (s *BookingService) publish(ctx context.Context, typ string, b model.Booking) {
	ev := queue.BookingEvent{
		Type:       typ,
		BookingID:  b.ID,
		ResourceID: b.ResourceID,
		UserID:     b.UserID,
		StartsAt:   b.StartsAt,
		EndsAt:     b.EndsAt,
		OccurredAt: s.now(),
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		log.WithError(err).WithFields(log.Fields{"event": typ, "booking_id": b.ID}).
			Warn("booking event publish failed")
	}
}
