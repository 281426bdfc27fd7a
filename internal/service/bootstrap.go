package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/iliyamo/escape-room-manager/internal/config"
	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/repository"
)

// ErrNoAdminPassword is returned on first start when no account exists and
// ADMIN_PASSWORD is unset.
var ErrNoAdminPassword = errors.New("no user exists and ADMIN_PASSWORD is not set")

// EnsureAdmin creates the bootstrap ADMIN account when the users table is
// empty.  It reports whether an account was created.
func EnsureAdmin(ctx context.Context, users *repository.UserRepo, cfg config.AuthConfig, logger *slog.Logger) (bool, error) {
	n, err := users.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if cfg.AdminPassword == "" {
		return false, ErrNoAdminPassword
	}
	admin := &model.User{Username: cfg.AdminUsername, Role: model.RoleAdmin}
	if err := users.Create(ctx, admin, cfg.AdminPassword); err != nil {
		return false, err
	}
	logger.InfoContext(ctx, "bootstrap_admin_created", slog.String("username", admin.Username))
	return true, nil
}
