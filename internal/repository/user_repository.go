package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/escape-room-manager/internal/database"
	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/utils"
)

const userColumns = "id, username, password_hash, role, first_name, last_name, email"

// UserRepo stores staff accounts.  Passwords only ever reach the table as
// bcrypt hashes.
type UserRepo struct {
	db   *sql.DB
	cost int // bcrypt cost for new hashes
}

func NewUserRepo(db *sql.DB, bcryptCost int) *UserRepo { return &UserRepo{db: db, cost: bcryptCost} }

func scanUser(sc rowScanner) (model.User, error) {
	var u model.User
	var role string
	err := sc.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.FirstName, &u.LastName, &u.Email)
	u.Role = model.Role(role)
	return u, err
}

func (r *UserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// FindByUsername fetches a user by exact, case-sensitive username.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

// FindAll lists every account ordered by username.
func (r *UserRepo) FindAll(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// Count returns the number of accounts.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Authenticate returns the user only when the password matches.  Unknown
// usernames and wrong passwords both yield ErrInvalidCredentials.
func (r *UserRepo) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := r.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			utils.RejectPassword(password, r.cost)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Create hashes the password and inserts the user.  A taken username yields
// ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u *model.User, password string) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if err := model.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := utils.HashPassword(password, r.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role, first_name, last_name, email) VALUES (?, ?, ?, ?, ?, ?)",
		u.Username, hash, string(u.Role), u.FirstName, u.LastName, u.Email)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("username %q: %w", u.Username, ErrDuplicate)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = uint64(id)
	u.PasswordHash = hash
	return nil
}

// Update changes username, role and contact fields.  The password hash is
// never touched here; see UpdatePassword.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET username = ?, role = ?, first_name = ?, last_name = ?, email = ? WHERE id = ?",
		u.Username, string(u.Role), u.FirstName, u.LastName, u.Email, u.ID)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("username %q: %w", u.Username, ErrDuplicate)
		}
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces the stored hash with one for the new password.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, password string) error {
	if err := model.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := utils.HashPassword(password, r.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
	if err != nil {
		return fmt.Errorf("update user %d password: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user; their refresh tokens go with them.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id = ?", id); err != nil {
			return fmt.Errorf("delete user %d tokens: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete user %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}
