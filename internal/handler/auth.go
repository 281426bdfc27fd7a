package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escape-room-manager/internal/config"
	"github.com/iliyamo/escape-room-manager/internal/middleware"
	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/repository"
	"github.com/iliyamo/escape-room-manager/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.AuthConfig
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Log    *slog.Logger
}

func NewAuthHandler(cfg config.AuthConfig, u *repository.UserRepo, t *repository.TokenRepo, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Log: logger}
}

// ----- DTOs -----

type registerReq struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type passwordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       uint64     `json:"id"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// Register: create a STAFF account and return tokens immediately.  Admins
// are created through /v1/users.
func (h *AuthHandler) Register(c echo.Context) error {
	if !h.Cfg.AllowRegistration {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "registration is disabled"})
	}
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return badRequest(c, "username/password required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	u := &model.User{
		Username:  req.Username,
		Role:      model.RoleStaff,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if err := h.Users.Create(ctx, u, req.Password); err != nil {
		return respondError(c, h.Log, "register", err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return respondError(c, h.Log, "register", err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login: verify and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Username == "" || req.Password == "" {
		return badRequest(c, "username/password required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return respondError(c, h.Log, "login", err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return respondError(c, h.Log, "login", err)
	}
	h.Log.InfoContext(ctx, "user logged in", "user_id", u.ID, "role", u.Role)
	return c.JSON(http.StatusOK, resp)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestContext(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return respondError(c, h.Log, "refresh", err)
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return respondError(c, h.Log, "refresh", err)
	}
	u, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		// the account went away after the token was issued
		if errorStatus(err) == http.StatusNotFound {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": repository.ErrInvalidToken.Error()})
		}
		return respondError(c, h.Log, "refresh", err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return respondError(c, h.Log, "refresh", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes either one session or all of them.  A refresh_token in the
// body revokes that token; otherwise a valid bearer token revokes every
// refresh token of its user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := requestContext(c)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return respondError(c, h.Log, "logout", err)
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return respondError(c, h.Log, "logout", err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if raw, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(raw))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		if err := h.Tokens.RevokeAllForUser(ctx, claims.UserID); err != nil {
			return respondError(c, h.Log, "logout", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	return badRequest(c, "provide Authorization header or refresh_token")
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Users.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "me", err)
	}
	return c.JSON(http.StatusOK, u)
}

// ChangePassword rotates the caller's own password.  The current password
// must be given again and every other session is logged out.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	id, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req passwordReq
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		return badRequest(c, "current_password/new_password required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "change password", err)
	}
	if _, err := h.Users.Authenticate(ctx, u.Username, req.CurrentPassword); err != nil {
		return respondError(c, h.Log, "change password", err)
	}
	if err := h.Users.UpdatePassword(ctx, id, req.NewPassword); err != nil {
		return respondError(c, h.Log, "change password", err)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
		return respondError(c, h.Log, "change password", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// issue creates an access/refresh pair and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u *model.User) (*authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role), h.Cfg.AccessTTLMin)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return nil, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, err
	}
	return &authResp{
		User:    userPart{ID: u.ID, Username: u.Username, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}
