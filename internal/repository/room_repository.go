// This file defines the room repository.  A room is a bookable escape room;
// bookings and game sessions reference it, so deletes are refused while such
// rows exist.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/iliyamo/escape-room-manager/internal/database"
	"github.com/iliyamo/escape-room-manager/internal/model"
)

const roomColumns = "id, name, theme, difficulty, capacity, price, duration, description, is_active, average_rating"

// RoomRepo encapsulates all database queries related to rooms.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo constructs a RoomRepo with the provided DB handle.
func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func scanRoom(sc rowScanner) (model.Room, error) {
	var rm model.Room
	var theme string
	err := sc.Scan(&rm.ID, &rm.Name, &theme, &rm.Difficulty, &rm.Capacity, &rm.Price,
		&rm.Duration, &rm.Description, &rm.IsActive, &rm.AverageRating)
	rm.Theme = model.Theme(theme)
	return rm, err
}

// FindByID fetches a room by its ID.  It returns ErrRoomNotFound if no row
// matches.
func (r *RoomRepo) FindByID(ctx context.Context, id uint64) (*model.Room, error) {
	return findRoom(ctx, r.db, id)
}

func findRoom(ctx context.Context, q dbtx, id uint64) (*model.Room, error) {
	rm, err := scanRoom(q.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("find room %d: %w", id, err)
	}
	return &rm, nil
}

// FindAll returns every room ordered by name.
func (r *RoomRepo) FindAll(ctx context.Context) ([]model.Room, error) {
	return r.list(ctx, "SELECT "+roomColumns+" FROM rooms ORDER BY name, id")
}

// FindActive returns the rooms currently open for bookings.
func (r *RoomRepo) FindActive(ctx context.Context) ([]model.Room, error) {
	return r.list(ctx, "SELECT "+roomColumns+" FROM rooms WHERE is_active = 1 ORDER BY name, id")
}

// FindByTheme returns the rooms of one theme ordered by name.
func (r *RoomRepo) FindByTheme(ctx context.Context, theme model.Theme) ([]model.Room, error) {
	return r.list(ctx, "SELECT "+roomColumns+" FROM rooms WHERE theme = ? ORDER BY name, id", string(theme))
}

func (r *RoomRepo) list(ctx context.Context, query string, args ...any) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	out := make([]model.Room, 0)
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return out, nil
}

// Count returns the number of rooms.
func (r *RoomRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&n); err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	return n, nil
}

// Create inserts a new room and assigns its ID.
func (r *RoomRepo) Create(ctx context.Context, rm *model.Room) error {
	if err := rm.Validate(); err != nil {
		return err
	}
	const q = `INSERT INTO rooms (name, theme, difficulty, capacity, price, duration, description, is_active, average_rating)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, rm.Name, string(rm.Theme), rm.Difficulty, rm.Capacity,
		rm.Price, rm.Duration, rm.Description, rm.IsActive, rm.AverageRating)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	rm.ID = uint64(id)
	return nil
}

// Update overwrites every mutable column.  The average rating is left alone;
// it only changes through UpdateRating or RecalculateRating.
func (r *RoomRepo) Update(ctx context.Context, rm *model.Room) error {
	if err := rm.Validate(); err != nil {
		return err
	}
	const q = `UPDATE rooms
	           SET name = ?, theme = ?, difficulty = ?, capacity = ?, price = ?, duration = ?, description = ?, is_active = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, rm.Name, string(rm.Theme), rm.Difficulty, rm.Capacity,
		rm.Price, rm.Duration, rm.Description, rm.IsActive, rm.ID)
	if err != nil {
		return fmt.Errorf("update room %d: %w", rm.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// Delete removes a room.  ErrConflict is returned while bookings or game
// sessions still reference it.
func (r *RoomRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		used, err := exists(ctx, tx,
			`SELECT 1 FROM bookings WHERE room_id = ?
			 UNION ALL
			 SELECT 1 FROM game_sessions WHERE room_id = ?
			 LIMIT 1`, id, id)
		if err != nil {
			return fmt.Errorf("check room %d references: %w", id, err)
		}
		if used {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("delete room %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrRoomNotFound
		}
		return nil
	})
}

// UpdateRating sets the average rating explicitly.  The value must lie in
// [0, 5].
func (r *RoomRepo) UpdateRating(ctx context.Context, id uint64, value float64) error {
	return updateRating(ctx, r.db, id, value)
}

func updateRating(ctx context.Context, q dbtx, id uint64, value float64) error {
	if !model.ValidRating(value) || math.IsNaN(value) {
		return &model.ValidationError{Fields: []string{"rating must be between 0 and 5"}}
	}
	res, err := q.ExecContext(ctx, "UPDATE rooms SET average_rating = ? WHERE id = ?", value, id)
	if err != nil {
		return fmt.Errorf("update room %d rating: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// RecalculateRating sets the room's average rating from its rated game
// sessions and returns the new value.  A room without rated sessions gets 0.
func (r *RoomRepo) RecalculateRating(ctx context.Context, id uint64) (float64, error) {
	return recalculateRating(ctx, r.db, id)
}

// RecalculateRatingTx is RecalculateRating inside the caller's transaction.
func (r *RoomRepo) RecalculateRatingTx(ctx context.Context, tx *sql.Tx, id uint64) (float64, error) {
	return recalculateRating(ctx, tx, id)
}

func recalculateRating(ctx context.Context, q dbtx, id uint64) (float64, error) {
	var avg sql.NullFloat64
	err := q.QueryRowContext(ctx,
		"SELECT AVG(rating) FROM game_sessions WHERE room_id = ? AND rating IS NOT NULL", id).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average rating for room %d: %w", id, err)
	}
	value := 0.0
	if avg.Valid {
		value = math.Round(avg.Float64*100) / 100
	}
	if err := updateRating(ctx, q, id, value); err != nil {
		return 0, err
	}
	return value, nil
}
