// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values let handlers tell a missing row from a
// failing store: every lookup that finds nothing wraps ErrNotFound, while
// driver failures are returned wrapped with the operation that hit them.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every entity-specific not-found error.  Handlers
// translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

var (
	ErrRoomNotFound    = fmt.Errorf("room %w", ErrNotFound)
	ErrPlayerNotFound  = fmt.Errorf("player %w", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("game session %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
)

// ErrConflict is returned when a delete cannot be performed because other
// rows still reference the target, such as removing a room that has
// bookings.  Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when a unique column (player email, username)
// already holds the value being written.
var ErrDuplicate = errors.New("already exists")

// ErrInvalidCredentials is returned by Authenticate for an unknown username
// and for a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned when a refresh token is unknown, expired or
// revoked.
var ErrInvalidToken = errors.New("invalid refresh token")
