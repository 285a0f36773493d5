// Package availability answers the two questions the booking API asks
// about time: is a resource already booked in a window, and which
// resources are free in a window.  The engine holds no state of its own;
// every call reads a fresh snapshot from the Store it was built with.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/resource-booking/internal/model"
)

// ErrInvalidWindow is returned when a search window does not satisfy
// start < end.
var ErrInvalidWindow = errors.New("start must be earlier than end")

// ErrInvalidPage is returned when page or page size is below one.
var ErrInvalidPage = errors.New("page and page size must be at least 1")

// ErrUnavailable wraps any failure of the underlying store.
var ErrUnavailable = errors.New("availability store unavailable")

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Store is the read side the engine depends on.  A nil resourceID lists
// everything; a non-nil one restricts the result to that resource.
// ListBookings must return at least every booking overlapping within;
// extra rows are tolerated and filtered out by the engine.
type Store interface {
	ListBookings(ctx context.Context, resourceID *uint64, within Window) ([]model.Booking, error)
	ListResources(ctx context.Context, resourceID *uint64) ([]model.Resource, error)
}

// Query describes an availability search.  Page is 1-based.
type Query struct {
	Start      time.Time
	End        time.Time
	ResourceID *uint64
	Page       int
	PageSize   int
}

// Page is one page of free resources.  TotalResults counts the whole
// candidate set before pagination.
type Page struct {
	TotalResults int
	TotalPages   int
	CurrentPage  int
	PageSize     int
	Results      []model.Resource
}

// Engine evaluates overlap checks and availability searches.
type Engine struct {
	store Store
}

// New returns an Engine reading from store.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only touch at an endpoint do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// IsResourceBooked reports whether any booking of resourceID overlaps
// [start, end).  The window itself is not validated.
func (e *Engine) IsResourceBooked(ctx context.Context, resourceID uint64, start, end time.Time) (bool, error) {
	return e.isBooked(ctx, resourceID, 0, start, end)
}

// IsResourceBookedExcluding is IsResourceBooked ignoring the booking with
// id excludeID, so an update is never rejected for overlapping its own
// previous interval.
func (e *Engine) IsResourceBookedExcluding(ctx context.Context, resourceID, excludeID uint64, start, end time.Time) (bool, error) {
	return e.isBooked(ctx, resourceID, excludeID, start, end)
}

func (e *Engine) isBooked(ctx context.Context, resourceID, excludeID uint64, start, end time.Time) (bool, error) {
	bookings, err := e.listBookings(ctx, &resourceID, Window{Start: start, End: end})
	if err != nil {
		return false, err
	}
	for _, b := range bookings {
		if b.ResourceID != resourceID || (excludeID != 0 && b.ID == excludeID) {
			continue
		}
		if Overlaps(b.StartsAt, b.EndsAt, start, end) {
			return true, nil
		}
	}
	return false, nil
}

// SearchAvailability returns the resources with no booking overlapping
// [q.Start, q.End), ordered by id and paginated.  An unknown
// q.ResourceID yields an empty result rather than an error.
func (e *Engine) SearchAvailability(ctx context.Context, q Query) (Page, error) {
	if !q.Start.Before(q.End) {
		return Page{}, ErrInvalidWindow
	}
	if q.Page < 1 || q.PageSize < 1 {
		return Page{}, ErrInvalidPage
	}

	bookings, err := e.listBookings(ctx, q.ResourceID, Window{Start: q.Start, End: q.End})
	if err != nil {
		return Page{}, err
	}
	booked := make(map[uint64]struct{})
	for _, b := range bookings {
		if q.ResourceID != nil && b.ResourceID != *q.ResourceID {
			continue
		}
		if Overlaps(b.StartsAt, b.EndsAt, q.Start, q.End) {
			booked[b.ResourceID] = struct{}{}
		}
	}

	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	resources, err := e.store.ListResources(ctx, q.ResourceID)
	if err != nil {
		return Page{}, unavailable(err)
	}
	candidates := make([]model.Resource, 0, len(resources))
	for _, r := range resources {
		if q.ResourceID != nil && r.ID != *q.ResourceID {
			continue
		}
		if _, ok := booked[r.ID]; ok {
			continue
		}
		candidates = append(candidates, r)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	total := len(candidates)
	out := Page{
		TotalResults: total,
		TotalPages:   total / q.PageSize,
		CurrentPage:  q.Page,
		PageSize:     q.PageSize,
		Results:      []model.Resource{},
	}
	if total%q.PageSize != 0 {
		out.TotalPages++
	}
	// Pages past the end are empty.
	if q.Page > out.TotalPages {
		return out, nil
	}
	offset := (q.Page - 1) * q.PageSize
	limit := offset + q.PageSize
	if limit > total {
		limit = total
	}
	out.Results = append(out.Results, candidates[offset:limit]...)
	return out, nil
}

func (e *Engine) listBookings(ctx context.Context, resourceID *uint64, within Window) ([]model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bookings, err := e.store.ListBookings(ctx, resourceID, within)
	if err != nil {
		return nil, unavailable(err)
	}
	return bookings, nil
}

// unavailable tags a store error with ErrUnavailable while keeping the
// cause (including context errors) reachable through errors.Is.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
