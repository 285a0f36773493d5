package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-booking/internal/model"
)

// ResourceTypeStore is implemented by repository.ResourceTypeRepo.
type ResourceTypeStore interface {
	Create(ctx context.Context, t *model.ResourceType) error
	GetByID(ctx context.Context, id uint64) (model.ResourceType, error)
	List(ctx context.Context) ([]model.ResourceType, error)
	Update(ctx context.Context, t *model.ResourceType) error
	Delete(ctx context.Context, id uint64) error
}

// ResourceStore is implemented by repository.ResourceRepo.
type ResourceStore interface {
	Create(ctx context.Context, r *model.Resource) error
	GetByID(ctx context.Context, id uint64) (model.Resource, error)
	List(ctx context.Context, typeID *uint64) ([]model.Resource, error)
	Update(ctx context.Context, r *model.Resource) error
	Delete(ctx context.Context, id uint64) error
}

type resourceTypeReq struct {
	TypeName string `json:"type_name" validate:"required,max=100"`
}

type resourceTypeResp struct {
	ID       uint64 `json:"id"`
	TypeName string `json:"type_name"`
}

type resourceReq struct {
	Name           string `json:"name" validate:"required,max=150"`
	ResourceTypeID uint64 `json:"resource_type_id" validate:"required"`
}

type resourceResp struct {
	ID             uint64 `json:"id"`
	Name           string `json:"name"`
	ResourceTypeID uint64 `json:"resource_type_id"`
	TypeName       string `json:"resource_type_name"`
}

func toResourceResp(r model.Resource) resourceResp {
	return resourceResp{ID: r.ID, Name: r.Name, ResourceTypeID: r.ResourceTypeID, TypeName: r.TypeName}
}

// ResourceTypeHandler serves /v1/resourcetypes.
type ResourceTypeHandler struct {
	Types ResourceTypeStore
}

func NewResourceTypeHandler(types ResourceTypeStore) *ResourceTypeHandler {
	return &ResourceTypeHandler{Types: types}
}

func (h *ResourceTypeHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	types, err := h.Types.List(ctx)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]resourceTypeResp, 0, len(types))
	for _, t := range types {
		out = append(out, resourceTypeResp(t))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ResourceTypeHandler) Get(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	t, err := h.Types.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resourceTypeResp(t))
}

func (h *ResourceTypeHandler) Create(c echo.Context) error {
	var req resourceTypeReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	t := model.ResourceType{TypeName: req.TypeName}
	if err := h.Types.Create(ctx, &t); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, resourceTypeResp(t))
}

func (h *ResourceTypeHandler) Update(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req resourceTypeReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	t := model.ResourceType{ID: id, TypeName: req.TypeName}
	if err := h.Types.Update(ctx, &t); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resourceTypeResp(t))
}

// Delete fails with 409 while resources still use the type.
func (h *ResourceTypeHandler) Delete(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	if err := h.Types.Delete(ctx, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ResourceHandler serves /v1/resources.
type ResourceHandler struct {
	Resources ResourceStore
}

func NewResourceHandler(resources ResourceStore) *ResourceHandler {
	return &ResourceHandler{Resources: resources}
}

// List accepts an optional ?resource_type_id= filter.
func (h *ResourceHandler) List(c echo.Context) error {
	typeID, err := optionalUint(c, "resource_type_id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	resources, err := h.Resources.List(ctx, typeID)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]resourceResp, 0, len(resources))
	for _, r := range resources {
		out = append(out, toResourceResp(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ResourceHandler) Get(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	r, err := h.Resources.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResourceResp(r))
}

func (h *ResourceHandler) Create(c echo.Context) error {
	var req resourceReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	r := model.Resource{Name: req.Name, ResourceTypeID: req.ResourceTypeID}
	if err := h.Resources.Create(ctx, &r); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toResourceResp(r))
}

func (h *ResourceHandler) Update(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req resourceReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	r := model.Resource{ID: id, Name: req.Name, ResourceTypeID: req.ResourceTypeID}
	if err := h.Resources.Update(ctx, &r); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResourceResp(r))
}

// Delete fails with 409 while bookings reference the resource.
func (h *ResourceHandler) Delete(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	if err := h.Resources.Delete(ctx, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
