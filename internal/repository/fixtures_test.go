package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/escape-room-manager/internal/database/dbtest"
	"github.com/iliyamo/escape-room-manager/internal/model"
)

var ctx = context.Background()

// slot is a fixed, second-aligned booking time used across tests.
var slot = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fixture struct {
	db       *sql.DB
	rooms    *RoomRepo
	players  *PlayerRepo
	bookings *BookingRepo
	sessions *GameSessionRepo
	users    *UserRepo
	tokens   *TokenRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	return &fixture{
		db:       db,
		rooms:    NewRoomRepo(db),
		players:  NewPlayerRepo(db),
		bookings: NewBookingRepo(db),
		sessions: NewGameSessionRepo(db),
		users:    NewUserRepo(db, bcrypt.MinCost),
		tokens:   NewTokenRepo(db),
	}
}

func (f *fixture) room(t *testing.T, name string, theme model.Theme, capacity int, price string) model.Room {
	t.Helper()
	rm := model.Room{
		Name:       name,
		Theme:      theme,
		Difficulty: 3,
		Capacity:   capacity,
		Price:      decimal.RequireFromString(price),
		Duration:   60,
		IsActive:   true,
	}
	if err := f.rooms.Create(ctx, &rm); err != nil {
		t.Fatalf("create room %s: %v", name, err)
	}
	return rm
}

func (f *fixture) player(t *testing.T, first, last string) model.Player {
	t.Helper()
	p := model.Player{
		FirstName: first,
		LastName:  last,
		Email:     fmt.Sprintf("%s.%s@example.com", first, last),
	}
	if err := f.players.Create(ctx, &p); err != nil {
		t.Fatalf("create player %s: %v", first, err)
	}
	return p
}

func (f *fixture) booking(t *testing.T, roomID uint64, at time.Time, players ...uint64) model.Booking {
	t.Helper()
	b := model.Booking{RoomID: roomID, PlayerIDs: players, ScheduledTime: at, TotalPrice: decimal.NewFromInt(50)}
	if err := f.bookings.Create(ctx, &b); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

func intPtr(v int) *int { return &v }

func ids(players []model.Player) []uint64 {
	out := make([]uint64, len(players))
	for i, p := range players {
		out[i] = p.ID
	}
	return out
}
