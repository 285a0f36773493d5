package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/resource-booking/internal/availability"
	"github.com/iliyamo/resource-booking/internal/config"
	"github.com/iliyamo/resource-booking/internal/middleware"
	"github.com/iliyamo/resource-booking/internal/model"
	"github.com/iliyamo/resource-booking/internal/repository"
	"github.com/iliyamo/resource-booking/internal/service"
	"github.com/iliyamo/resource-booking/internal/utils"
	"github.com/iliyamo/resource-booking/internal/validation"
)

type fakeBookings struct {
	createFn func(ctx context.Context, a service.Actor, b model.Booking) (model.Booking, error)
	updateFn func(ctx context.Context, a service.Actor, id uint64, ch service.BookingChanges) (model.Booking, error)
	getFn    func(ctx context.Context, a service.Actor, id uint64) (model.Booking, error)
	listFn   func(ctx context.Context, a service.Actor, f repository.BookingFilter) ([]model.Booking, error)
	deleteFn func(ctx context.Context, a service.Actor, id uint64) error
}

func (f *fakeBookings) Create(ctx context.Context, a service.Actor, b model.Booking) (model.Booking, error) {
	return f.createFn(ctx, a, b)
}
func (f *fakeBookings) Update(ctx context.Context, a service.Actor, id uint64, ch service.BookingChanges) (model.Booking, error) {
	return f.updateFn(ctx, a, id, ch)
}
func (f *fakeBookings) Get(ctx context.Context, a service.Actor, id uint64) (model.Booking, error) {
	return f.getFn(ctx, a, id)
}
func (f *fakeBookings) List(ctx context.Context, a service.Actor, fl repository.BookingFilter) ([]model.Booking, error) {
	return f.listFn(ctx, a, fl)
}
func (f *fakeBookings) Delete(ctx context.Context, a service.Actor, id uint64) error {
	return f.deleteFn(ctx, a, id)
}

type fakeSearcher struct {
	fn func(ctx context.Context, q availability.Query) (availability.Page, error)
}

func (f *fakeSearcher) SearchAvailability(ctx context.Context, q availability.Query) (availability.Page, error) {
	return f.fn(ctx, q)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validation.New()
	return e
}

// request builds a context authenticated as uid with role, or anonymous
// when uid is zero.
func request(e *echo.Echo, method, target, body string, uid uint64, role string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid != 0 {
		c.Set(middleware.CtxUserID, uid)
		c.Set(middleware.CtxRole, role)
	}
	return c, rec
}

func TestBookingCreate(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	var got model.Booking
	var gotActor service.Actor
	h := NewBookingHandler(&fakeBookings{
		createFn: func(_ context.Context, a service.Actor, b model.Booking) (model.Booking, error) {
			gotActor, got = a, b
			b.ID = 11
			b.UserID = a.UserID
			return b, nil
		},
	}, nil)

	body := fmt.Sprintf(`{"resource_id":3,"start":%q,"end":%q}`, start.Format(time.RFC3339), end.Format(time.RFC3339))
	c, rec := request(newEcho(), http.MethodPost, "/v1/bookings", body, 7, model.RoleUser)
	require.NoError(t, h.Create(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, service.Actor{UserID: 7}, gotActor)
	assert.Equal(t, uint64(3), got.ResourceID)
	assert.True(t, got.StartsAt.Equal(start))
	assert.True(t, got.EndsAt.Equal(end))

	var resp bookingResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(11), resp.ID)
	assert.Equal(t, uint64(7), resp.UserID)
}

func TestBookingCreate_Errors(t *testing.T) {
	valid := `{"resource_id":3,"start":"2024-05-01T09:00:00Z","end":"2024-05-01T10:00:00Z"}`
	tests := []struct {
		name   string
		body   string
		uid    uint64
		err    error
		status int
	}{
		{"conflict", valid, 7, service.ErrBookingConflict, http.StatusConflict},
		{"bad window", valid, 7, availability.ErrInvalidWindow, http.StatusBadRequest},
		{"unknown resource", valid, 7, repository.ErrResourceNotFound, http.StatusNotFound},
		{"forbidden", valid, 7, repository.ErrForbidden, http.StatusForbidden},
		{"missing start", `{"resource_id":3,"end":"2024-05-01T10:00:00Z"}`, 7, nil, http.StatusBadRequest},
		{"malformed json", `{"resource_id":`, 7, nil, http.StatusBadRequest},
		{"anonymous", valid, 0, nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBookingHandler(&fakeBookings{
				createFn: func(context.Context, service.Actor, model.Booking) (model.Booking, error) {
					if tt.err == nil {
						t.Fatal("service must not be called")
					}
					return model.Booking{}, tt.err
				},
			}, nil)
			c, rec := request(newEcho(), http.MethodPost, "/v1/bookings", tt.body, tt.uid, model.RoleUser)
			require.NoError(t, h.Create(c))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestBookingUpdate_PassesPartialChanges(t *testing.T) {
	var got service.BookingChanges
	var gotID uint64
	h := NewBookingHandler(&fakeBookings{
		updateFn: func(_ context.Context, _ service.Actor, id uint64, ch service.BookingChanges) (model.Booking, error) {
			gotID, got = id, ch
			return model.Booking{ID: id}, nil
		},
	}, nil)
	c, rec := request(newEcho(), http.MethodPut, "/v1/bookings/5", `{"end":"2024-05-01T12:00:00Z"}`, 7, model.RoleUser)
	c.SetParamNames("id")
	c.SetParamValues("5")
	require.NoError(t, h.Update(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(5), gotID)
	assert.Nil(t, got.ResourceID)
	assert.Nil(t, got.StartsAt)
	require.NotNil(t, got.EndsAt)
	assert.True(t, got.EndsAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestBookingList_Filters(t *testing.T) {
	var got repository.BookingFilter
	h := NewBookingHandler(&fakeBookings{
		listFn: func(_ context.Context, _ service.Actor, f repository.BookingFilter) ([]model.Booking, error) {
			got = f
			return nil, nil
		},
	}, nil)
	c, rec := request(newEcho(), http.MethodGet, "/v1/bookings?resource_id=4", "", 1, model.RoleAdmin)
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	require.NotNil(t, got.ResourceID)
	assert.Equal(t, uint64(4), *got.ResourceID)
	assert.Nil(t, got.UserID)

	c, rec = request(newEcho(), http.MethodGet, "/v1/bookings?user_id=abc", "", 1, model.RoleAdmin)
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingDelete(t *testing.T) {
	h := NewBookingHandler(&fakeBookings{
		deleteFn: func(_ context.Context, _ service.Actor, id uint64) error {
			if id == 9 {
				return repository.ErrBookingNotFound
			}
			return nil
		},
	}, nil)
	for id, status := range map[string]int{"2": http.StatusNoContent, "9": http.StatusNotFound, "x": http.StatusBadRequest} {
		c, rec := request(newEcho(), http.MethodDelete, "/v1/bookings/"+id, "", 7, model.RoleUser)
		c.SetParamNames("id")
		c.SetParamValues(id)
		require.NoError(t, h.Delete(c))
		assert.Equal(t, status, rec.Code, "id %s", id)
	}
}

func TestSearchAvailability(t *testing.T) {
	var got availability.Query
	h := NewBookingHandler(nil, &fakeSearcher{fn: func(_ context.Context, q availability.Query) (availability.Page, error) {
		got = q
		return availability.Page{
			TotalResults: 3, TotalPages: 2, CurrentPage: 2, PageSize: 2,
			Results: []model.Resource{{ID: 5, Name: "Van", ResourceTypeID: 1, TypeName: "Car"}},
		}, nil
	}})

	c, rec := request(newEcho(), http.MethodGet,
		"/v1/bookings/availability?start=2024-05-01T09:00:00%2B02:00&end=2024-05-01T10:00:00Z&page=2&page_size=2&resource_id=5",
		"", 7, model.RoleUser)
	require.NoError(t, h.SearchAvailability(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"total_results": 3, "total_pages": 2, "current_page": 2, "page_size": 2,
		"results": [{"resource_id": 5, "name": "Van", "resource_type_id": 1, "resource_type_name": "Car"}]
	}`, rec.Body.String())
	assert.Equal(t, time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC), got.Start)
	assert.Equal(t, time.UTC, got.Start.Location())
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 2, got.PageSize)
	require.NotNil(t, got.ResourceID)
	assert.Equal(t, uint64(5), *got.ResourceID)
}

func TestSearchAvailability_Defaults(t *testing.T) {
	var got availability.Query
	h := NewBookingHandler(nil, &fakeSearcher{fn: func(_ context.Context, q availability.Query) (availability.Page, error) {
		got = q
		return availability.Page{CurrentPage: q.Page, PageSize: q.PageSize}, nil
	}})

	c, rec := request(newEcho(), http.MethodGet,
		"/v1/bookings/availability?start=2024-05-01T09:00:00Z&end=2024-05-01T10:00:00Z", "", 7, model.RoleUser)
	require.NoError(t, h.SearchAvailability(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, defaultPageSize, got.PageSize)
	assert.Nil(t, got.ResourceID)
	assert.Contains(t, rec.Body.String(), `"results":[]`)

	c, _ = request(newEcho(), http.MethodGet,
		"/v1/bookings/availability?start=2024-05-01T09:00:00Z&end=2024-05-01T10:00:00Z&page_size=1000", "", 7, model.RoleUser)
	require.NoError(t, h.SearchAvailability(c))
	assert.Equal(t, maxPageSize, got.PageSize)
}

func TestSearchAvailability_BadParams(t *testing.T) {
	h := NewBookingHandler(nil, &fakeSearcher{fn: func(_ context.Context, q availability.Query) (availability.Page, error) {
		if !q.Start.Before(q.End) {
			return availability.Page{}, availability.ErrInvalidWindow
		}
		return availability.Page{}, nil
	}})
	window := "start=2024-05-01T09:00:00Z&end=2024-05-01T10:00:00Z"
	for _, qs := range []string{
		"end=2024-05-01T10:00:00Z",
		"start=2024-05-01T09:00:00Z",
		"start=yesterday&end=2024-05-01T10:00:00Z",
		"start=2024-05-01T10:00:00Z&end=2024-05-01T09:00:00Z",
		"start=2024-05-01T09:00:00Z&end=2024-05-01T09:00:00Z",
		"start=2024-05-01T09:00:00Z&end=2024-05-01T09:00:00.4Z",
		window + "&page=0",
		window + "&page=-1",
		window + "&page_size=0",
		window + "&page_size=ten",
		window + "&resource_id=0",
	} {
		c, rec := request(newEcho(), http.MethodGet, "/v1/bookings/availability?"+qs, "", 7, model.RoleUser)
		require.NoError(t, h.SearchAvailability(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, qs)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", service.ErrBookingConflict), http.StatusConflict},
		{availability.ErrInvalidPage, http.StatusBadRequest},
		{repository.ErrEmailExists, http.StatusConflict},
		{repository.ErrConflict, http.StatusConflict},
		{repository.ErrUserNotFound, http.StatusNotFound},
		{repository.ErrResourceTypeNotFound, http.StatusNotFound},
		{repository.ErrForbidden, http.StatusForbidden},
		{repository.ErrRefreshInvalid, http.StatusUnauthorized},
		{fmt.Errorf("%w: deadlock", repository.ErrBusy), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", availability.ErrUnavailable, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		c, rec := request(newEcho(), http.MethodGet, "/", "", 0, "")
		require.NoError(t, writeError(c, tt.err))
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}

	c, rec := request(newEcho(), http.MethodGet, "/", "", 0, "")
	require.NoError(t, writeError(c, errors.New("dsn password=secret")))
	assert.NotContains(t, rec.Body.String(), "secret")
}

// ----- auth -----

type fakeUsers struct {
	UserStore
	createFn     func(ctx context.Context, u *model.User, password string, cost int) error
	getByEmailFn func(ctx context.Context, email string) (model.User, error)
}

func (f *fakeUsers) Create(ctx context.Context, u *model.User, password string, cost int) error {
	return f.createFn(ctx, u, password, cost)
}
func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return f.getByEmailFn(ctx, email)
}

type fakeTokens struct {
	TokenStore
	stored []string
}

func (f *fakeTokens) StoreRefresh(_ context.Context, _ uint64, hash string, _ time.Time) error {
	f.stored = append(f.stored, hash)
	return nil
}

var testCfg = config.Config{JWTSecret: "test-secret", JWTIssuer: "resource-booking", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}

func TestRegister(t *testing.T) {
	var created model.User
	tokens := &fakeTokens{}
	h := NewAuthHandler(testCfg, &fakeUsers{createFn: func(_ context.Context, u *model.User, password string, cost int) error {
		assert.Equal(t, "password123", password)
		assert.Equal(t, 4, cost)
		u.ID = 42
		created = *u
		return nil
	}}, tokens)

	c, rec := request(newEcho(), http.MethodPost, "/v1/auth/register",
		`{"email":"a@example.com","password":"password123","name":" Ann ","last_name":"Lee"}`, 0, "")
	require.NoError(t, h.Register(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, model.RoleUser, created.Role)
	assert.Equal(t, "Ann", created.Name)
	require.Len(t, tokens.stored, 1)

	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(42), resp.User.ID)
	assert.Equal(t, tokens.stored[0], utils.HashRefreshRaw(resp.Refresh.Token))
	claims, err := utils.ParseAccessToken(testCfg.JWTSecret, testCfg.JWTIssuer, resp.Access.Token)
	require.NoError(t, err)
	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
}

func TestRegister_Rejects(t *testing.T) {
	h := NewAuthHandler(testCfg, &fakeUsers{createFn: func(context.Context, *model.User, string, int) error {
		return repository.ErrEmailExists
	}}, &fakeTokens{})

	c, rec := request(newEcho(), http.MethodPost, "/v1/auth/register",
		`{"email":"a@example.com","password":"password123","name":"Ann"}`, 0, "")
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	c, rec = request(newEcho(), http.MethodPost, "/v1/auth/register",
		`{"email":"not-an-email","password":"short","name":"Ann"}`, 0, "")
	require.NoError(t, h.Register(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email must be a valid email")
}

func TestLogin(t *testing.T) {
	hash, err := utils.HashPassword("password123", 4)
	require.NoError(t, err)
	users := &fakeUsers{getByEmailFn: func(_ context.Context, email string) (model.User, error) {
		if email != "jane.doe@example.com" {
			return model.User{}, repository.ErrUserNotFound
		}
		return model.User{ID: 2, Email: email, PasswordHash: hash, Role: model.RoleUser}, nil
	}}
	h := NewAuthHandler(testCfg, users, &fakeTokens{})

	tests := []struct {
		body   string
		status int
	}{
		{`{"email":"jane.doe@example.com","password":"password123"}`, http.StatusOK},
		{`{"email":"jane.doe@example.com","password":"wrong-pass"}`, http.StatusUnauthorized},
		{`{"email":"nobody@example.com","password":"password123"}`, http.StatusUnauthorized},
		{`{"email":"jane.doe@example.com"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		c, rec := request(newEcho(), http.MethodPost, "/v1/auth/login", tt.body, 0, "")
		require.NoError(t, h.Login(c))
		assert.Equal(t, tt.status, rec.Code, tt.body)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	c, rec := request(newEcho(), http.MethodGet, "/healthz", "", 0, "")
	require.NoError(t, Health(pingFunc(func(context.Context) error { return nil }))(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = request(newEcho(), http.MethodGet, "/healthz", "", 0, "")
	require.NoError(t, Health(pingFunc(func(context.Context) error { return errors.New("down") }))(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
