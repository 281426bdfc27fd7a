package repository

// Batch loaders resolve the references of a whole result set with one IN
// query per relation, instead of one lookup per row.

import (
	"context"
	"fmt"

	"github.com/iliyamo/escape-room-manager/internal/model"
)

func loadRooms(ctx context.Context, q dbtx, ids []uint64) (map[uint64]model.Room, error) {
	ids = model.UniqueIDs(ids)
	out := make(map[uint64]model.Room, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	in, args := inClause(ids)
	rows, err := q.QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id IN ("+in+")", args...)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out[rm.ID] = rm
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	return out, nil
}

// loadBookingPlayers returns the players of each booking ordered by name.
func loadBookingPlayers(ctx context.Context, q dbtx, bookingIDs []uint64) (map[uint64][]model.Player, error) {
	bookingIDs = model.UniqueIDs(bookingIDs)
	out := make(map[uint64][]model.Player, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return out, nil
	}
	in, args := inClause(bookingIDs)
	query := `SELECT bp.booking_id, p.id, p.first_name, p.last_name, p.email, p.phone, p.total_games_played,
	                 p.games_won, p.games_lost, p.average_time, p.total_hints_used, p.registration_date
	          FROM booking_players bp
	          JOIN players p ON p.id = bp.player_id
	          WHERE bp.booking_id IN (` + in + `)
	          ORDER BY bp.booking_id, p.first_name, p.last_name, p.id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load booking players: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bookingID uint64
		p, err := scanPlayerWith(rows, &bookingID)
		if err != nil {
			return nil, fmt.Errorf("scan booking player: %w", err)
		}
		out[bookingID] = append(out[bookingID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load booking players: %w", err)
	}
	return out, nil
}

// requirePlayers fails with ErrPlayerNotFound naming the first ID that has
// no row.
func requirePlayers(ctx context.Context, q dbtx, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	rows, err := q.QueryContext(ctx, "SELECT id FROM players WHERE id IN ("+in+")", args...)
	if err != nil {
		return fmt.Errorf("check players: %w", err)
	}
	defer rows.Close()
	found := make(map[uint64]bool, len(ids))
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("check players: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("check players: %w", err)
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("%w: id %d", ErrPlayerNotFound, id)
		}
	}
	return nil
}

func requireRoom(ctx context.Context, q dbtx, id uint64) error {
	ok, err := exists(ctx, q, "SELECT 1 FROM rooms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("check room %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: id %d", ErrRoomNotFound, id)
	}
	return nil
}
