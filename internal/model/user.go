package model

import "strings"

// Role is the permission level of a staff account.
type Role string

const (
	RoleStaff Role = "STAFF"
	RoleAdmin Role = "ADMIN"
)

// ParseRole matches a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r == RoleStaff || r == RoleAdmin
}

// User represents an application user record as stored in the `users`
// table.  PasswordHash is a bcrypt digest and is never serialized.
type User struct {
	ID           uint64 `json:"id"`
	Username     string `json:"username" validate:"required,max=50"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role" validate:"required,oneof=STAFF ADMIN"`
	FirstName    string `json:"first_name" validate:"max=50"`
	LastName     string `json:"last_name" validate:"max=50"`
	Email        string `json:"email" validate:"omitempty,email,max=255"`
}

// Validate checks the account fields; the password is checked separately
// because only its hash is stored.
func (u *User) Validate() error {
	u.Username = strings.TrimSpace(u.Username)
	return check(u)
}

// ValidatePassword enforces the minimum password policy for new and rotated
// passwords.
func ValidatePassword(plain string) error {
	if len(plain) < 6 {
		return &ValidationError{Fields: []string{"password must be at least 6 characters"}}
	}
	// bcrypt ignores everything past 72 bytes
	if len(plain) > 72 {
		return &ValidationError{Fields: []string{"password must be at most 72 bytes"}}
	}
	return nil
}
