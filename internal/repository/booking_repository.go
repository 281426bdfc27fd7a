package repository

// This file defines the booking repository.  A booking row and its
// booking_players links are always written in one transaction so a failure
// never leaves a booking with a stale or partial player set.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/escape-room-manager/internal/database"
	"github.com/iliyamo/escape-room-manager/internal/model"
)

const bookingColumns = "id, room_id, scheduled_time, booking_date, status, number_of_players, total_price, notes"

// BookingRepo encapsulates all database queries related to bookings.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo constructs a BookingRepo with the provided DB handle.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func scanBooking(sc rowScanner) (model.Booking, error) {
	var b model.Booking
	var status string
	err := sc.Scan(&b.ID, &b.RoomID, &b.ScheduledTime, &b.BookingDate, &status,
		&b.NumberOfPlayers, &b.TotalPrice, &b.Notes)
	b.Status = model.BookingStatus(status)
	b.ScheduledTime = b.ScheduledTime.UTC()
	b.BookingDate = b.BookingDate.UTC()
	return b, err
}

// FindByID returns a fully materialized booking or ErrBookingNotFound.
func (r *BookingRepo) FindByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return findBooking(ctx, r.db, id)
}

func findBooking(ctx context.Context, q dbtx, id uint64) (*model.Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("find booking %d: %w", id, err)
	}
	list := []model.Booking{b}
	if err := hydrateBookings(ctx, q, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// FindAll returns every booking, most recently scheduled first.
func (r *BookingRepo) FindAll(ctx context.Context) ([]model.Booking, error) {
	return listBookings(ctx, r.db, "SELECT "+bookingColumns+" FROM bookings ORDER BY scheduled_time DESC, id DESC")
}

// FindByRoom returns the bookings of one room, most recent first.
func (r *BookingRepo) FindByRoom(ctx context.Context, roomID uint64) ([]model.Booking, error) {
	return listBookings(ctx, r.db,
		"SELECT "+bookingColumns+" FROM bookings WHERE room_id = ? ORDER BY scheduled_time DESC, id DESC", roomID)
}

// FindByStatus returns the bookings in one status, most recent first.
func (r *BookingRepo) FindByStatus(ctx context.Context, status model.BookingStatus) ([]model.Booking, error) {
	return listBookings(ctx, r.db,
		"SELECT "+bookingColumns+" FROM bookings WHERE status = ? ORDER BY scheduled_time DESC, id DESC", string(status))
}

// FindByDateRange returns bookings scheduled within [start, end], earliest
// first.
func (r *BookingRepo) FindByDateRange(ctx context.Context, start, end time.Time) ([]model.Booking, error) {
	return listBookings(ctx, r.db,
		"SELECT "+bookingColumns+" FROM bookings WHERE scheduled_time BETWEEN ? AND ? ORDER BY scheduled_time, id",
		dbTime(start), dbTime(end))
}

// CountByDateRange counts bookings scheduled within [start, end].
func (r *BookingRepo) CountByDateRange(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE scheduled_time BETWEEN ? AND ?", dbTime(start), dbTime(end)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return n, nil
}

// IsRoomAvailable reports whether no live booking holds the room at exactly
// the given time.  Cancelled bookings free their slot.  Only identical start
// times collide; overlapping intervals are not considered.
func (r *BookingRepo) IsRoomAvailable(ctx context.Context, roomID uint64, at time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE room_id = ? AND scheduled_time = ? AND status <> ?",
		roomID, dbTime(at), string(model.StatusCancelled)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check room %d availability: %w", roomID, err)
	}
	return n == 0, nil
}

func listBookings(ctx context.Context, q dbtx, query string, args ...any) ([]model.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	// rows is exhausted here, so the loaders can reuse the connection
	if err := hydrateBookings(ctx, q, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadBookings fetches many bookings by ID, keyed by ID.
func loadBookings(ctx context.Context, q dbtx, ids []uint64) (map[uint64]model.Booking, error) {
	ids = model.UniqueIDs(ids)
	out := make(map[uint64]model.Booking, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	in, args := inClause(ids)
	list, err := listBookings(ctx, q, "SELECT "+bookingColumns+" FROM bookings WHERE id IN ("+in+")", args...)
	if err != nil {
		return nil, err
	}
	for _, b := range list {
		out[b.ID] = b
	}
	return out, nil
}

// hydrateBookings attaches rooms and players to every booking in place.
func hydrateBookings(ctx context.Context, q dbtx, bookings []model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	roomIDs := make([]uint64, len(bookings))
	bookingIDs := make([]uint64, len(bookings))
	for i, b := range bookings {
		roomIDs[i] = b.RoomID
		bookingIDs[i] = b.ID
	}
	rooms, err := loadRooms(ctx, q, roomIDs)
	if err != nil {
		return err
	}
	players, err := loadBookingPlayers(ctx, q, bookingIDs)
	if err != nil {
		return err
	}
	for i := range bookings {
		b := &bookings[i]
		if rm, ok := rooms[b.RoomID]; ok {
			b.Room = &rm
		}
		b.Players = players[b.ID]
		if b.Players == nil {
			b.Players = []model.Player{}
		}
		b.PlayerIDs = make([]uint64, len(b.Players))
		for j, p := range b.Players {
			b.PlayerIDs[j] = p.ID
		}
	}
	return nil
}

// Create inserts the booking and its player links atomically.  The room and
// every player must exist.  An empty status starts as PENDING.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	if b.NumberOfPlayers == 0 {
		b.NumberOfPlayers = len(model.UniqueIDs(b.PlayerIDs))
	}
	if err := b.Validate(); err != nil {
		return err
	}
	b.ScheduledTime = dbTime(b.ScheduledTime)
	b.BookingDate = nowUTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireRoom(ctx, tx, b.RoomID); err != nil {
			return err
		}
		if err := requirePlayers(ctx, tx, b.PlayerIDs); err != nil {
			return err
		}
		const q = `INSERT INTO bookings (room_id, scheduled_time, booking_date, status, number_of_players, total_price, notes)
		           VALUES (?, ?, ?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, q, b.RoomID, b.ScheduledTime, b.BookingDate, string(b.Status),
			b.NumberOfPlayers, b.TotalPrice, b.Notes)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		b.ID = uint64(id)
		if err := insertBookingPlayers(ctx, tx, b.ID, b.PlayerIDs); err != nil {
			return err
		}
		return hydrateOne(ctx, tx, b)
	})
}

// Update overwrites the booking row and replaces its whole player set in one
// transaction.  The booking date is kept from creation.
func (r *BookingRepo) Update(ctx context.Context, b *model.Booking) error {
	if b.NumberOfPlayers == 0 {
		b.NumberOfPlayers = len(model.UniqueIDs(b.PlayerIDs))
	}
	if err := b.Validate(); err != nil {
		return err
	}
	b.ScheduledTime = dbTime(b.ScheduledTime)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var created time.Time
		err := tx.QueryRowContext(ctx, "SELECT booking_date FROM bookings WHERE id = ?", b.ID).Scan(&created)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBookingNotFound
			}
			return fmt.Errorf("find booking %d: %w", b.ID, err)
		}
		b.BookingDate = created.UTC()
		if err := requireRoom(ctx, tx, b.RoomID); err != nil {
			return err
		}
		if err := requirePlayers(ctx, tx, b.PlayerIDs); err != nil {
			return err
		}
		const q = `UPDATE bookings
		           SET room_id = ?, scheduled_time = ?, status = ?, number_of_players = ?, total_price = ?, notes = ?
		           WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, b.RoomID, b.ScheduledTime, string(b.Status),
			b.NumberOfPlayers, b.TotalPrice, b.Notes, b.ID); err != nil {
			return fmt.Errorf("update booking %d: %w", b.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM booking_players WHERE booking_id = ?", b.ID); err != nil {
			return fmt.Errorf("clear booking %d players: %w", b.ID, err)
		}
		if err := insertBookingPlayers(ctx, tx, b.ID, b.PlayerIDs); err != nil {
			return err
		}
		return hydrateOne(ctx, tx, b)
	})
}

// hydrateOne refreshes b's room and players from the store.
func hydrateOne(ctx context.Context, q dbtx, b *model.Booking) error {
	list := []model.Booking{*b}
	if err := hydrateBookings(ctx, q, list); err != nil {
		return err
	}
	*b = list[0]
	return nil
}

func insertBookingPlayers(ctx context.Context, tx *sql.Tx, bookingID uint64, playerIDs []uint64) error {
	for _, pid := range model.UniqueIDs(playerIDs) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO booking_players (booking_id, player_id) VALUES (?, ?)", bookingID, pid); err != nil {
			if database.IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: id %d", ErrPlayerNotFound, pid)
			}
			return fmt.Errorf("link player %d to booking %d: %w", pid, bookingID, err)
		}
	}
	return nil
}

// UpdateStatus sets any known status.  Transition rules are enforced by the
// booking workflow, not here.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id uint64, status model.BookingStatus) error {
	if !status.Valid() {
		return &model.ValidationError{Fields: []string{fmt.Sprintf("unknown status %q", status)}}
	}
	res, err := r.db.ExecContext(ctx, "UPDATE bookings SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("update booking %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// Delete removes a booking and its player links.  A booking that a game
// session points to cannot be deleted.
func (r *BookingRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		used, err := exists(ctx, tx, "SELECT 1 FROM game_sessions WHERE booking_id = ? LIMIT 1", id)
		if err != nil {
			return fmt.Errorf("check booking %d references: %w", id, err)
		}
		if used {
			return ErrConflict
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM booking_players WHERE booking_id = ?", id); err != nil {
			return fmt.Errorf("clear booking %d players: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM bookings WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete booking %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrBookingNotFound
		}
		return nil
	})
}
