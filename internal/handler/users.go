package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escape-room-manager/internal/middleware"
	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/repository"
)

// UserHandler serves the ADMIN-only /v1/users endpoints.
type UserHandler struct {
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Log    *slog.Logger
}

func NewUserHandler(users *repository.UserRepo, tokens *repository.TokenRepo, logger *slog.Logger) *UserHandler {
	return &UserHandler{Users: users, Tokens: tokens, Log: logger}
}

type userReq struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (req userReq) apply(u *model.User) {
	u.Username = req.Username
	u.Role = model.Role(strings.TrimSpace(req.Role))
	if r, ok := model.ParseRole(req.Role); ok {
		u.Role = r
	}
	if u.Role == "" {
		u.Role = model.RoleStaff
	}
	u.FirstName = strings.TrimSpace(req.FirstName)
	u.LastName = strings.TrimSpace(req.LastName)
	u.Email = strings.ToLower(strings.TrimSpace(req.Email))
}

// ListUsers handles GET /v1/users.
func (h *UserHandler) ListUsers(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	items, err := h.Users.FindAll(ctx)
	if err != nil {
		return respondError(c, h.Log, "list users", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetUser handles GET /v1/users/:id.
func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Users.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "get user", err)
	}
	return c.JSON(http.StatusOK, u)
}

// CreateUser handles POST /v1/users.  The role defaults to STAFF.
func (h *UserHandler) CreateUser(c echo.Context) error {
	var req userReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	u := &model.User{}
	req.apply(u)

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Users.Create(ctx, u, req.Password); err != nil {
		return respondError(c, h.Log, "create user", err)
	}
	h.Log.InfoContext(ctx, "user created", "user_id", u.ID, "role", u.Role, "by", callerID(c))
	return c.JSON(http.StatusCreated, u)
}

// UpdateUser handles PUT /v1/users/:id.  A password in the body is ignored;
// use PUT /v1/users/:id/password.
func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req userReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Users.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "update user", err)
	}
	// an admin cannot demote themselves and lock everyone out
	if id == callerID(c) {
		req.Role = string(u.Role)
	}
	req.apply(u)
	if err := h.Users.Update(ctx, u); err != nil {
		return respondError(c, h.Log, "update user", err)
	}
	return c.JSON(http.StatusOK, u)
}

// ResetPassword handles PUT /v1/users/:id/password.  The user's sessions
// are revoked.
func (h *UserHandler) ResetPassword(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil || body.Password == "" {
		return badRequest(c, "password required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Users.UpdatePassword(ctx, id, body.Password); err != nil {
		return respondError(c, h.Log, "reset password", err)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
		return respondError(c, h.Log, "reset password", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteUser handles DELETE /v1/users/:id.  Admins cannot delete their own
// account.
func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if id == callerID(c) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "cannot delete your own account"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Users.Delete(ctx, id); err != nil {
		return respondError(c, h.Log, "delete user", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func callerID(c echo.Context) uint64 {
	id, _ := middleware.UserID(c)
	return id
}
