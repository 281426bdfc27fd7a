package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/escape-room-manager/internal/config"
	"github.com/iliyamo/escape-room-manager/internal/database/dbtest"
	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/queue"
	"github.com/iliyamo/escape-room-manager/internal/repository"
)

var ctx = context.Background()

var slot = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []queue.BookingEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, ev queue.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type env struct {
	rooms    *repository.RoomRepo
	players  *repository.PlayerRepo
	bookings *repository.BookingRepo
	sessions *repository.GameSessionRepo
	events   *recorder
	flow     *Bookings
	record   *Sessions
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbtest.Open(t)
	e := &env{
		rooms:    repository.NewRoomRepo(db),
		players:  repository.NewPlayerRepo(db),
		bookings: repository.NewBookingRepo(db),
		sessions: repository.NewGameSessionRepo(db),
		events:   &recorder{},
	}
	e.flow = NewBookings(e.rooms, e.bookings, e.events, nil)
	e.record = NewSessions(db, e.rooms, e.players, e.sessions, nil)
	return e
}

func (e *env) room(t *testing.T, capacity int, active bool) model.Room {
	t.Helper()
	rm := model.Room{Name: "Mystery Manor", Theme: model.ThemeMystery, Difficulty: 3, Capacity: capacity,
		Price: decimal.NewFromInt(50), Duration: 60, IsActive: active}
	if err := e.rooms.Create(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	return rm
}

func (e *env) player(t *testing.T, first string) model.Player {
	t.Helper()
	p := model.Player{FirstName: first, LastName: "Test", Email: first + "@example.com"}
	if err := e.players.Create(ctx, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCreateBooking(t *testing.T) {
	e := newEnv(t)
	rm := e.room(t, 6, true)
	p1, p2 := e.player(t, "ann"), e.player(t, "bob")

	b := model.Booking{RoomID: rm.ID, PlayerIDs: []uint64{p1.ID, p2.ID}, ScheduledTime: slot}
	if err := e.flow.Create(ctx, &b); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != model.StatusPending || !b.TotalPrice.Equal(decimal.NewFromInt(50)) || b.NumberOfPlayers != 2 {
		t.Fatalf("booking = %+v", b)
	}
	if len(e.events.events) != 1 || e.events.events[0].Type != queue.BookingCreated || e.events.events[0].RoomName != "Mystery Manor" {
		t.Fatalf("events = %+v", e.events.events)
	}

	clash := model.Booking{RoomID: rm.ID, PlayerIDs: []uint64{p1.ID}, ScheduledTime: slot}
	if err := e.flow.Create(ctx, &clash); !errors.Is(err, ErrRoomUnavailable) {
		t.Fatalf("double booking: %v", err)
	}
}

func TestCreateBookingRules(t *testing.T) {
	e := newEnv(t)
	small := e.room(t, 2, true)
	closed := e.room(t, 6, false)
	p := e.player(t, "ann")

	cases := []struct {
		name string
		b    model.Booking
		want error
	}{
		{"over capacity", model.Booking{RoomID: small.ID, PlayerIDs: []uint64{p.ID}, NumberOfPlayers: 3, ScheduledTime: slot}, ErrCapacityExceeded},
		{"inactive room", model.Booking{RoomID: closed.ID, PlayerIDs: []uint64{p.ID}, ScheduledTime: slot}, ErrRoomInactive},
		{"missing room", model.Booking{RoomID: 404, ScheduledTime: slot, NumberOfPlayers: 1}, repository.ErrRoomNotFound},
		{"terminal start", model.Booking{RoomID: small.ID, Status: model.StatusCancelled, NumberOfPlayers: 1, ScheduledTime: slot}, ErrIllegalTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.b
			if err := e.flow.Create(ctx, &b); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if len(e.events.events) != 0 {
		t.Fatalf("events published for rejected bookings: %d", len(e.events.events))
	}
}

func TestPublishFailureDoesNotFailBooking(t *testing.T) {
	e := newEnv(t)
	e.events.err = errors.New("broker down")
	rm := e.room(t, 6, true)
	b := model.Booking{RoomID: rm.ID, NumberOfPlayers: 2, ScheduledTime: slot}
	if err := e.flow.Create(ctx, &b); err != nil {
		t.Fatalf("Create with failing publisher: %v", err)
	}
}

func TestChangeStatus(t *testing.T) {
	e := newEnv(t)
	rm := e.room(t, 6, true)
	p := e.player(t, "ann")
	b := model.Booking{RoomID: rm.ID, PlayerIDs: []uint64{p.ID}, ScheduledTime: slot}
	if err := e.flow.Create(ctx, &b); err != nil {
		t.Fatal(err)
	}

	if _, err := e.flow.ChangeStatus(ctx, b.ID, model.StatusCompleted); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("PENDING -> COMPLETED: %v", err)
	}
	got, err := e.flow.ChangeStatus(ctx, b.ID, model.StatusConfirmed)
	if err != nil || got.Status != model.StatusConfirmed {
		t.Fatalf("confirm = %v, %v", got, err)
	}
	if _, err := e.flow.ChangeStatus(ctx, b.ID, model.StatusConfirmed); err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if _, err := e.flow.ChangeStatus(ctx, b.ID, model.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := e.flow.ChangeStatus(ctx, b.ID, model.StatusCancelled); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("COMPLETED -> CANCELLED: %v", err)
	}
	if _, err := e.flow.ChangeStatus(ctx, b.ID, "LOST"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("unknown status: %v", err)
	}

	stored, _ := e.bookings.FindByID(ctx, b.ID)
	if stored.Status != model.StatusCompleted || len(stored.Players) != 1 {
		t.Fatalf("stored = %+v", stored)
	}
	// created, confirmed, completed
	if n := len(e.events.events); n != 3 {
		t.Fatalf("%d events, want 3", n)
	}
	last := e.events.events[2]
	if last.Type != queue.BookingStatusChanged || last.PreviousStatus != "CONFIRMED" || last.Status != "COMPLETED" {
		t.Fatalf("last event = %+v", last)
	}
}

func TestUpdateBooking(t *testing.T) {
	e := newEnv(t)
	rm := e.room(t, 4, true)
	p := e.player(t, "ann")
	first := model.Booking{RoomID: rm.ID, PlayerIDs: []uint64{p.ID}, ScheduledTime: slot}
	second := model.Booking{RoomID: rm.ID, PlayerIDs: []uint64{p.ID}, ScheduledTime: slot.Add(time.Hour)}
	for _, b := range []*model.Booking{&first, &second} {
		if err := e.flow.Create(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	// unchanged slot does not collide with itself
	first.Notes = "birthday"
	if err := e.flow.Update(ctx, &first); err != nil {
		t.Fatalf("Update in place: %v", err)
	}
	first.ScheduledTime = second.ScheduledTime
	if err := e.flow.Update(ctx, &first); !errors.Is(err, ErrRoomUnavailable) {
		t.Fatalf("move onto taken slot: %v", err)
	}
	first.ScheduledTime = slot
	first.NumberOfPlayers = 9
	if err := e.flow.Update(ctx, &first); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("over capacity: %v", err)
	}
	first.NumberOfPlayers = 1
	first.Status = model.StatusCompleted
	if err := e.flow.Update(ctx, &first); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("illegal status via update: %v", err)
	}
	first.Status = model.StatusConfirmed
	if err := e.flow.Update(ctx, &first); err != nil {
		t.Fatalf("confirm via update: %v", err)
	}
	if ok, _ := e.flow.Availability(ctx, rm.ID, slot); ok {
		t.Fatal("slot should be taken")
	}
	if _, err := e.flow.Availability(ctx, 404, slot); !errors.Is(err, repository.ErrRoomNotFound) {
		t.Fatalf("availability of missing room: %v", err)
	}
}

func TestRecordSession(t *testing.T) {
	e := newEnv(t)
	rm := e.room(t, 6, true)
	p1, p2 := e.player(t, "ann"), e.player(t, "bob")
	b := model.Booking{RoomID: rm.ID, PlayerIDs: []uint64{p1.ID, p2.ID}, ScheduledTime: slot}
	if err := e.flow.Create(ctx, &b); err != nil {
		t.Fatal(err)
	}

	end := slot.Add(45 * time.Minute)
	rating := 4
	gs := model.GameSession{BookingID: &b.ID, RoomID: rm.ID, StartTime: slot, EndTime: &end,
		Completed: true, TimeSpent: 45, HintsUsed: 2, Rating: &rating, Revenue: decimal.NewFromInt(50)}
	if err := e.record.Record(ctx, &gs); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(gs.Players) != 2 {
		t.Fatalf("session players = %d", len(gs.Players))
	}
	for _, id := range []uint64{p1.ID, p2.ID} {
		p, _ := e.players.FindByID(ctx, id)
		if p.TotalGamesPlayed != 1 || p.GamesWon != 1 || p.AverageTime != 45 || p.TotalHintsUsed != 2 {
			t.Fatalf("player %d = %+v", id, p)
		}
	}
	room, _ := e.rooms.FindByID(ctx, rm.ID)
	if room.AverageRating != 4 {
		t.Fatalf("room rating = %v", room.AverageRating)
	}

	// unfinished sessions leave statistics alone
	open := model.GameSession{BookingID: &b.ID, RoomID: rm.ID, StartTime: slot.Add(time.Hour)}
	if err := e.record.Record(ctx, &open); err != nil {
		t.Fatal(err)
	}
	p, _ := e.players.FindByID(ctx, p1.ID)
	if p.TotalGamesPlayed != 1 {
		t.Fatalf("unfinished session counted: %+v", p)
	}
}

func TestRecordSessionRollsBack(t *testing.T) {
	e := newEnv(t)
	rm := e.room(t, 6, true)
	other := e.room(t, 6, true)
	p := e.player(t, "ann")
	b := model.Booking{RoomID: rm.ID, PlayerIDs: []uint64{p.ID}, ScheduledTime: slot}
	if err := e.flow.Create(ctx, &b); err != nil {
		t.Fatal(err)
	}

	gs := model.GameSession{BookingID: &b.ID, RoomID: other.ID, StartTime: slot, Completed: true}
	if err := e.record.Record(ctx, &gs); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("booking for another room: %v", err)
	}
	all, _ := e.sessions.FindAll(ctx)
	if len(all) != 0 {
		t.Fatalf("%d sessions stored after rollback", len(all))
	}
	got, _ := e.players.FindByID(ctx, p.ID)
	if got.TotalGamesPlayed != 0 {
		t.Fatalf("stats changed after rollback: %+v", got)
	}
}

func TestUpdateAndDeleteSessionRefreshRating(t *testing.T) {
	e := newEnv(t)
	rm := e.room(t, 6, true)
	other := e.room(t, 6, true)

	four, two := 4, 2
	first := model.GameSession{RoomID: rm.ID, StartTime: slot, Rating: &four}
	second := model.GameSession{RoomID: rm.ID, StartTime: slot.Add(2 * time.Hour), Rating: &two}
	for _, gs := range []*model.GameSession{&first, &second} {
		if err := e.record.Record(ctx, gs); err != nil {
			t.Fatal(err)
		}
	}
	if got, _ := e.rooms.FindByID(ctx, rm.ID); got.AverageRating != 3 {
		t.Fatalf("rating after two sessions = %v", got.AverageRating)
	}

	// moving a rated session to another room refreshes both rooms
	second.RoomID = other.ID
	if err := e.record.Update(ctx, &second); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := e.rooms.FindByID(ctx, rm.ID); got.AverageRating != 4 {
		t.Fatalf("old room rating = %v", got.AverageRating)
	}
	if got, _ := e.rooms.FindByID(ctx, other.ID); got.AverageRating != 2 {
		t.Fatalf("new room rating = %v", got.AverageRating)
	}

	if err := e.record.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := e.rooms.FindByID(ctx, rm.ID); got.AverageRating != 0 {
		t.Fatalf("rating of unrated room = %v", got.AverageRating)
	}
	if err := e.record.Delete(ctx, first.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestEnsureAdmin(t *testing.T) {
	users := repository.NewUserRepo(dbtest.Open(t), bcrypt.MinCost)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.AuthConfig{AdminUsername: "admin"}

	if _, err := EnsureAdmin(ctx, users, cfg, logger); !errors.Is(err, ErrNoAdminPassword) {
		t.Fatalf("without password: %v", err)
	}

	cfg.AdminPassword = "first-start"
	created, err := EnsureAdmin(ctx, users, cfg, logger)
	if err != nil || !created {
		t.Fatalf("first start: created=%v err=%v", created, err)
	}
	u, err := users.Authenticate(ctx, "admin", "first-start")
	if err != nil || u.Role != model.RoleAdmin {
		t.Fatalf("bootstrap account = %+v, %v", u, err)
	}

	// later starts leave existing accounts alone, even without a password
	cfg.AdminPassword = ""
	if created, err := EnsureAdmin(ctx, users, cfg, logger); err != nil || created {
		t.Fatalf("second start: created=%v err=%v", created, err)
	}
}

func TestUpdateSessionRejectsBookingForAnotherRoom(t *testing.T) {
	e := newEnv(t)
	rm := e.room(t, 6, true)
	other := e.room(t, 6, true)
	p := e.player(t, "ann")
	b := model.Booking{RoomID: rm.ID, PlayerIDs: []uint64{p.ID}, ScheduledTime: slot}
	if err := e.flow.Create(ctx, &b); err != nil {
		t.Fatal(err)
	}

	five := 5
	gs := model.GameSession{BookingID: &b.ID, RoomID: rm.ID, StartTime: slot, Rating: &five}
	if err := e.record.Record(ctx, &gs); err != nil {
		t.Fatal(err)
	}

	moved := gs
	moved.RoomID = other.ID
	if err := e.record.Update(ctx, &moved); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("booking for another room: %v", err)
	}
	// the whole update rolled back: the session and both ratings are unchanged
	stored, err := e.sessions.FindByID(ctx, gs.ID)
	if err != nil || stored.RoomID != rm.ID {
		t.Fatalf("stored session = %+v, %v", stored, err)
	}
	if got, _ := e.rooms.FindByID(ctx, rm.ID); got.AverageRating != 5 {
		t.Fatalf("room rating = %v", got.AverageRating)
	}
	if got, _ := e.rooms.FindByID(ctx, other.ID); got.AverageRating != 0 {
		t.Fatalf("other room rating = %v", got.AverageRating)
	}
}
