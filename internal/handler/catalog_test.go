package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/resource-booking/internal/model"
	"github.com/iliyamo/resource-booking/internal/repository"
)

type fakeResources struct {
	ResourceStore
	createFn func(ctx context.Context, r *model.Resource) error
	listFn   func(ctx context.Context, typeID *uint64) ([]model.Resource, error)
	deleteFn func(ctx context.Context, id uint64) error
}

func (f *fakeResources) Create(ctx context.Context, r *model.Resource) error { return f.createFn(ctx, r) }
func (f *fakeResources) List(ctx context.Context, typeID *uint64) ([]model.Resource, error) {
	return f.listFn(ctx, typeID)
}
func (f *fakeResources) Delete(ctx context.Context, id uint64) error { return f.deleteFn(ctx, id) }

func TestResourceCreate(t *testing.T) {
	h := NewResourceHandler(&fakeResources{createFn: func(_ context.Context, r *model.Resource) error {
		if r.ResourceTypeID == 9 {
			return repository.ErrResourceTypeNotFound
		}
		r.ID, r.TypeName = 4, "Car"
		return nil
	}})

	c, rec := request(newEcho(), http.MethodPost, "/v1/resources", `{"name":"Van","resource_type_id":1}`, 1, model.RoleAdmin)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":4,"name":"Van","resource_type_id":1,"resource_type_name":"Car"}`, rec.Body.String())

	c, rec = request(newEcho(), http.MethodPost, "/v1/resources", `{"name":"Van","resource_type_id":9}`, 1, model.RoleAdmin)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = request(newEcho(), http.MethodPost, "/v1/resources", `{"name":"Van"}`, 1, model.RoleAdmin)
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "resource_type_id is required")
}

func TestResourceList_TypeFilter(t *testing.T) {
	var got *uint64
	h := NewResourceHandler(&fakeResources{listFn: func(_ context.Context, typeID *uint64) ([]model.Resource, error) {
		got = typeID
		return []model.Resource{{ID: 1, Name: "Toyota Corolla", ResourceTypeID: 2, TypeName: "Car"}}, nil
	}})

	c, rec := request(newEcho(), http.MethodGet, "/v1/resources?resource_type_id=2", "", 1, model.RoleUser)
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, uint64(2), *got)
	assert.JSONEq(t, `[{"id":1,"name":"Toyota Corolla","resource_type_id":2,"resource_type_name":"Car"}]`, rec.Body.String())
}

func TestResourceDelete_Referenced(t *testing.T) {
	h := NewResourceHandler(&fakeResources{deleteFn: func(context.Context, uint64) error { return repository.ErrConflict }})
	c, rec := request(newEcho(), http.MethodDelete, "/v1/resources/1", "", 1, model.RoleAdmin)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.Delete(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type userFake struct {
	UserStore
	users map[uint64]model.User
}

func (f *userFake) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *userFake) Update(_ context.Context, u *model.User, _ string, _ int) error {
	f.users[u.ID] = *u
	return nil
}

func TestUserUpdate_Permissions(t *testing.T) {
	newStore := func() *userFake {
		return &userFake{users: map[uint64]model.User{
			2: {ID: 2, Email: "jane.doe@example.com", Name: "Jane", Role: model.RoleUser},
		}}
	}
	tests := []struct {
		name   string
		uid    uint64
		role   string
		body   string
		status int
		want   string
	}{
		{"self profile", 2, model.RoleUser, `{"email":"jane@example.com","name":"Janet"}`, http.StatusOK, model.RoleUser},
		{"self promotion", 2, model.RoleUser, `{"email":"jane@example.com","name":"Jane","role":"ADMIN"}`, http.StatusForbidden, model.RoleUser},
		{"other user", 3, model.RoleUser, `{"email":"jane@example.com","name":"Jane"}`, http.StatusForbidden, model.RoleUser},
		{"admin promotes", 1, model.RoleAdmin, `{"email":"jane@example.com","name":"Jane","role":"ADMIN"}`, http.StatusOK, model.RoleAdmin},
		{"bad role", 1, model.RoleAdmin, `{"email":"jane@example.com","name":"Jane","role":"ROOT"}`, http.StatusBadRequest, model.RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore()
			h := NewUserHandler(store, 4)
			c, rec := request(newEcho(), http.MethodPut, "/v1/users/2", tt.body, tt.uid, tt.role)
			c.SetParamNames("id")
			c.SetParamValues("2")
			require.NoError(t, h.Update(c))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, store.users[2].Role)
		})
	}
}
