package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/escape-room-manager/internal/model"
)

const sessionColumns = "id, booking_id, room_id, start_time, end_time, completed, time_spent, hints_used, rating, review, revenue"

// RoomRevenue is one entry of the per-room revenue breakdown.
type RoomRevenue struct {
	Room    model.Room      `json:"room"`
	Revenue decimal.Decimal `json:"revenue"`
}

// GameSessionRepo persists game sessions and answers the revenue
// aggregation queries.
type GameSessionRepo struct {
	db *sql.DB
}

func NewGameSessionRepo(db *sql.DB) *GameSessionRepo { return &GameSessionRepo{db: db} }

func scanSession(sc rowScanner) (model.GameSession, error) {
	var (
		s         model.GameSession
		bookingID sql.NullInt64
		endTime   sql.NullTime
		rating    sql.NullInt64
	)
	if err := sc.Scan(&s.ID, &bookingID, &s.RoomID, &s.StartTime, &endTime, &s.Completed,
		&s.TimeSpent, &s.HintsUsed, &rating, &s.Review, &s.Revenue); err != nil {
		return s, err
	}
	s.StartTime = s.StartTime.UTC()
	if bookingID.Valid {
		id := uint64(bookingID.Int64)
		s.BookingID = &id
	}
	if endTime.Valid {
		t := endTime.Time.UTC()
		s.EndTime = &t
	}
	// a stored 0 is read back as no rating as well
	if rating.Valid && rating.Int64 > 0 {
		v := int(rating.Int64)
		s.Rating = &v
	}
	return s, nil
}

// FindByID returns a session with its room, booking and players, or
// ErrSessionNotFound.
func (r *GameSessionRepo) FindByID(ctx context.Context, id uint64) (*model.GameSession, error) {
	return findSession(ctx, r.db, id)
}

func findSession(ctx context.Context, q dbtx, id uint64) (*model.GameSession, error) {
	s, err := scanSession(q.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM game_sessions WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find game session %d: %w", id, err)
	}
	list := []model.GameSession{s}
	if err := hydrateSessions(ctx, q, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// FindAll returns every session, latest start first.
func (r *GameSessionRepo) FindAll(ctx context.Context) ([]model.GameSession, error) {
	return r.list(ctx, "SELECT "+sessionColumns+" FROM game_sessions ORDER BY start_time DESC, id DESC")
}

// FindByRoom returns the sessions played in one room, latest start first.
func (r *GameSessionRepo) FindByRoom(ctx context.Context, roomID uint64) ([]model.GameSession, error) {
	return r.list(ctx,
		"SELECT "+sessionColumns+" FROM game_sessions WHERE room_id = ? ORDER BY start_time DESC, id DESC", roomID)
}

// FindByDateRange returns sessions that started within [start, end],
// earliest first.
func (r *GameSessionRepo) FindByDateRange(ctx context.Context, start, end time.Time) ([]model.GameSession, error) {
	return r.list(ctx,
		"SELECT "+sessionColumns+" FROM game_sessions WHERE start_time BETWEEN ? AND ? ORDER BY start_time, id",
		dbTime(start), dbTime(end))
}

func (r *GameSessionRepo) list(ctx context.Context, query string, args ...any) ([]model.GameSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list game sessions: %w", err)
	}
	defer rows.Close()
	out := make([]model.GameSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list game sessions: %w", err)
	}
	if err := hydrateSessions(ctx, r.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// hydrateSessions attaches rooms and bookings in two batch queries.  A
// session inherits the players of its booking; walk-ins have none.
func hydrateSessions(ctx context.Context, q dbtx, sessions []model.GameSession) error {
	if len(sessions) == 0 {
		return nil
	}
	roomIDs := make([]uint64, 0, len(sessions))
	bookingIDs := make([]uint64, 0, len(sessions))
	for _, s := range sessions {
		roomIDs = append(roomIDs, s.RoomID)
		if s.BookingID != nil {
			bookingIDs = append(bookingIDs, *s.BookingID)
		}
	}
	rooms, err := loadRooms(ctx, q, roomIDs)
	if err != nil {
		return err
	}
	bookings, err := loadBookings(ctx, q, bookingIDs)
	if err != nil {
		return err
	}
	for i := range sessions {
		s := &sessions[i]
		if rm, ok := rooms[s.RoomID]; ok {
			s.Room = &rm
		}
		s.Players = []model.Player{}
		if s.BookingID == nil {
			continue
		}
		if b, ok := bookings[*s.BookingID]; ok {
			s.Booking = &b
			s.Players = b.Players
		}
	}
	return nil
}

// revenueSum rounds to cents in SQL.  sqlite keeps NUMERIC money as a
// binary float, so an unrounded SUM of 0.10 and 0.20 is not 0.30.
const revenueSum = "ROUND(COALESCE(SUM(revenue), 0), 2)"

// TotalRevenue sums the revenue of sessions that started within [start, end].
func (r *GameSessionRepo) TotalRevenue(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		"SELECT "+revenueSum+" FROM game_sessions WHERE start_time BETWEEN ? AND ?",
		dbTime(start), dbTime(end)).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("total revenue: %w", err)
	}
	return total.Round(2), nil
}

// RevenueByRoom groups the same sum by room, ordered by room name.  Rooms
// without sessions in the range get no entry.
func (r *GameSessionRepo) RevenueByRoom(ctx context.Context, start, end time.Time) ([]RoomRevenue, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT room_id, `+revenueSum+` FROM game_sessions
		 WHERE start_time BETWEEN ? AND ?
		 GROUP BY room_id`, dbTime(start), dbTime(end))
	if err != nil {
		return nil, fmt.Errorf("revenue by room: %w", err)
	}
	defer rows.Close()
	sums := make(map[uint64]decimal.Decimal)
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		var sum decimal.Decimal
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, fmt.Errorf("scan room revenue: %w", err)
		}
		sums[id] = sum.Round(2)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revenue by room: %w", err)
	}

	rooms, err := loadRooms(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]RoomRevenue, 0, len(ids))
	for _, id := range ids {
		rm, ok := rooms[id]
		if !ok {
			rm = model.Room{ID: id}
		}
		out = append(out, RoomRevenue{Room: rm, Revenue: sums[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Room.Name != out[j].Room.Name {
			return out[i].Room.Name < out[j].Room.Name
		}
		return out[i].Room.ID < out[j].Room.ID
	})
	return out, nil
}

// Create inserts a session.  The room and, when given, the booking must
// exist.  A zero rating is stored as NULL.
func (r *GameSessionRepo) Create(ctx context.Context, s *model.GameSession) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return r.CreateTx(ctx, tx, s)
	})
}

// CreateTx is Create inside the caller's transaction.
func (r *GameSessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.GameSession) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := requireSessionRefs(ctx, tx, s); err != nil {
		return err
	}
	normalizeSessionTimes(s)
	const q = `INSERT INTO game_sessions (booking_id, room_id, start_time, end_time, completed, time_spent, hints_used, rating, review, revenue)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, sessionArgs(s)...)
	if err != nil {
		return fmt.Errorf("insert game session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert game session: %w", err)
	}
	s.ID = uint64(id)
	return hydrateSession(ctx, tx, s)
}

// Update overwrites every column of the session.
func (r *GameSessionRepo) Update(ctx context.Context, s *model.GameSession) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error { return r.UpdateTx(ctx, tx, s) })
}

// UpdateTx is Update inside the caller's transaction.
func (r *GameSessionRepo) UpdateTx(ctx context.Context, tx *sql.Tx, s *model.GameSession) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := requireSessionRefs(ctx, tx, s); err != nil {
		return err
	}
	normalizeSessionTimes(s)
	const q = `UPDATE game_sessions
	           SET booking_id = ?, room_id = ?, start_time = ?, end_time = ?, completed = ?, time_spent = ?,
	               hints_used = ?, rating = ?, review = ?, revenue = ?
	           WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, append(sessionArgs(s), s.ID)...)
	if err != nil {
		return fmt.Errorf("update game session %d: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return hydrateSession(ctx, tx, s)
}

// FindByIDTx is FindByID inside the caller's transaction.
func (r *GameSessionRepo) FindByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.GameSession, error) {
	return findSession(ctx, tx, id)
}

// Delete removes a session.  Nothing references sessions, so no guard is
// needed.
func (r *GameSessionRepo) Delete(ctx context.Context, id uint64) error {
	return deleteSession(ctx, r.db, id)
}

// DeleteTx is Delete inside the caller's transaction.
func (r *GameSessionRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	return deleteSession(ctx, tx, id)
}

func deleteSession(ctx context.Context, q dbtx, id uint64) error {
	res, err := q.ExecContext(ctx, "DELETE FROM game_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete game session %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func requireSessionRefs(ctx context.Context, q dbtx, s *model.GameSession) error {
	if err := requireRoom(ctx, q, s.RoomID); err != nil {
		return err
	}
	if s.BookingID == nil {
		return nil
	}
	ok, err := exists(ctx, q, "SELECT 1 FROM bookings WHERE id = ?", *s.BookingID)
	if err != nil {
		return fmt.Errorf("check booking %d: %w", *s.BookingID, err)
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrBookingNotFound, *s.BookingID)
	}
	return nil
}

func normalizeSessionTimes(s *model.GameSession) {
	s.StartTime = dbTime(s.StartTime)
	if s.EndTime != nil {
		t := dbTime(*s.EndTime)
		s.EndTime = &t
	}
}

func sessionArgs(s *model.GameSession) []any {
	var bookingID sql.NullInt64
	if s.BookingID != nil {
		bookingID = sql.NullInt64{Int64: int64(*s.BookingID), Valid: true}
	}
	var endTime sql.NullTime
	if s.EndTime != nil {
		endTime = sql.NullTime{Time: *s.EndTime, Valid: true}
	}
	var rating sql.NullInt64
	if s.Rating != nil && *s.Rating > 0 {
		rating = sql.NullInt64{Int64: int64(*s.Rating), Valid: true}
	}
	return []any{bookingID, s.RoomID, s.StartTime, endTime, s.Completed, s.TimeSpent,
		s.HintsUsed, rating, s.Review, s.Revenue}
}

func hydrateSession(ctx context.Context, q dbtx, s *model.GameSession) error {
	list := []model.GameSession{*s}
	if err := hydrateSessions(ctx, q, list); err != nil {
		return err
	}
	*s = list[0]
	return nil
}
