package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/repository"
)

// Sessions records finished games.  The session row, the players'
// statistics and the room rating change together or not at all.
type Sessions struct {
	db       *sql.DB
	rooms    *repository.RoomRepo
	players  *repository.PlayerRepo
	sessions *repository.GameSessionRepo
	log      *slog.Logger
}

func NewSessions(db *sql.DB, rooms *repository.RoomRepo, players *repository.PlayerRepo,
	sessions *repository.GameSessionRepo, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{db: db, rooms: rooms, players: players, sessions: sessions, log: logger}
}

// Record stores a session.  When it has finished, every player of the
// booking gets one more game (won when the room was completed).  A rated
// session refreshes the room's average rating.
func (s *Sessions) Record(ctx context.Context, gs *model.GameSession) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.sessions.CreateTx(ctx, tx, gs); err != nil {
			return err
		}
		if err := checkBookingRoom(gs); err != nil {
			return err
		}
		if gs.Finished() {
			for _, p := range gs.Players {
				if err := s.players.RecordGameTx(ctx, tx, p.ID, gs.Completed, gs.TimeSpent, gs.HintsUsed); err != nil {
					return err
				}
			}
		}
		if !gs.HasRating() {
			return nil
		}
		return s.refreshRatings(ctx, tx, gs, gs.RoomID)
	})
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "game_session_recorded",
		slog.Uint64("session_id", gs.ID),
		slog.Uint64("room_id", gs.RoomID),
		slog.Int("players", len(gs.Players)),
		slog.Bool("completed", gs.Completed))
	return nil
}

// Update rewrites a recorded session and refreshes the rating of every room
// it touched, in one transaction.  Player statistics are not replayed.
func (s *Sessions) Update(ctx context.Context, gs *model.GameSession) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.sessions.FindByIDTx(ctx, tx, gs.ID)
		if err != nil {
			return err
		}
		if err := s.sessions.UpdateTx(ctx, tx, gs); err != nil {
			return err
		}
		if err := checkBookingRoom(gs); err != nil {
			return err
		}
		return s.refreshRatings(ctx, tx, gs, current.RoomID, gs.RoomID)
	})
}

// Delete removes a session and refreshes its room's rating.
func (s *Sessions) Delete(ctx context.Context, id uint64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.sessions.FindByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.sessions.DeleteTx(ctx, tx, id); err != nil {
			return err
		}
		return s.refreshRatings(ctx, tx, nil, current.RoomID)
	})
}

// checkBookingRoom rejects a session whose booking is for another room.
func checkBookingRoom(gs *model.GameSession) error {
	if gs.Booking == nil || gs.Booking.RoomID == gs.RoomID {
		return nil
	}
	return &model.ValidationError{Fields: []string{
		fmt.Sprintf("booking %d is for room %d, not room %d", gs.Booking.ID, gs.Booking.RoomID, gs.RoomID)}}
}

func (s *Sessions) refreshRatings(ctx context.Context, tx *sql.Tx, gs *model.GameSession, roomIDs ...uint64) error {
	for _, id := range model.UniqueIDs(roomIDs) {
		avg, err := s.rooms.RecalculateRatingTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("refresh room %d rating: %w", id, err)
		}
		if gs != nil && gs.Room != nil && gs.Room.ID == id {
			gs.Room.AverageRating = avg
		}
	}
	return nil
}

func (s *Sessions) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
