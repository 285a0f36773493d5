package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/resource-booking/internal/model"
)

// UserHandler serves /v1/users.
type UserHandler struct {
	Users      UserStore
	BcryptCost int
}

func NewUserHandler(users UserStore, bcryptCost int) *UserHandler {
	return &UserHandler{Users: users, BcryptCost: bcryptCost}
}

type userResp struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResp(u model.User) userResp {
	return userResp{ID: u.ID, Email: u.Email, Name: u.Name, LastName: u.LastName, Role: u.Role, CreatedAt: u.CreatedAt}
}

type createUserReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	LastName string `json:"last_name" validate:"max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

// updateUserReq replaces profile fields.  Password and role are kept
// when omitted.
type updateUserReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"omitempty,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	LastName string `json:"last_name" validate:"max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

// List returns all users.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	users, err := h.Users.List(ctx)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]userResp, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResp(u))
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns one user.
func (h *UserHandler) Get(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Create adds a user with any role.  Admin only.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	u := model.User{Email: req.Email, Name: strings.TrimSpace(req.Name), LastName: strings.TrimSpace(req.LastName), Role: role}
	if err := h.Users.Create(ctx, &u, req.Password, h.BcryptCost); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toUserResp(u))
}

// Update edits a user.  Users may edit themselves; only admins may edit
// others or change a role.
func (h *UserHandler) Update(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	if !h.selfOrAdmin(c, id) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if req.Role != "" && req.Role != u.Role {
		if !isAdmin(c) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "only admins can change roles"})
		}
		u.Role = req.Role
	}
	u.Email = req.Email
	u.Name = strings.TrimSpace(req.Name)
	u.LastName = strings.TrimSpace(req.LastName)
	if err := h.Users.Update(ctx, &u, req.Password, h.BcryptCost); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Delete removes a user.  Self or admin.
func (h *UserHandler) Delete(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	if !h.selfOrAdmin(c, id) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	if err := h.Users.Delete(ctx, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) selfOrAdmin(c echo.Context, id uint64) bool {
	if isAdmin(c) {
		return true
	}
	uid, err := getUserID(c)
	return err == nil && uid == id
}
