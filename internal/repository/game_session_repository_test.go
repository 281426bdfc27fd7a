package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/escape-room-manager/internal/model"
)

func TestSessionRoundTrip(t *testing.T) {
	f := newFixture(t)
	rm := f.room(t, "Lab", model.ThemeSciFi, 6, "50")
	p := f.player(t, "Alpha", "A")
	bk := f.booking(t, rm.ID, slot, p.ID)

	end := slot.Add(55 * time.Minute)
	s := model.GameSession{
		BookingID: &bk.ID,
		RoomID:    rm.ID,
		StartTime: slot,
		EndTime:   &end,
		Completed: true,
		TimeSpent: 55,
		HintsUsed: 1,
		Rating:    intPtr(0),
		Review:    "tense",
		Revenue:   decimal.RequireFromString("75.5"),
	}
	if err := f.sessions.Create(ctx, &s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := f.sessions.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Rating != nil {
		t.Fatalf("zero rating read back as %d", *got.Rating)
	}
	if got.EndTime == nil || !got.EndTime.Equal(end) || !got.Revenue.Equal(decimal.RequireFromString("75.5")) {
		t.Fatalf("session = %+v", got)
	}
	if got.Booking == nil || got.Booking.ID != bk.ID || got.Room == nil || len(got.Players) != 1 {
		t.Fatalf("session not hydrated: %+v", got)
	}

	got.Rating = intPtr(4)
	if err := f.sessions.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, _ := f.sessions.FindByID(ctx, s.ID)
	if again.Rating == nil || *again.Rating != 4 {
		t.Fatalf("rating after update = %v", again.Rating)
	}
}

func TestSessionWalkIn(t *testing.T) {
	f := newFixture(t)
	rm := f.room(t, "Lab", model.ThemeSciFi, 6, "50")
	s := model.GameSession{RoomID: rm.ID, StartTime: slot}
	if err := f.sessions.Create(ctx, &s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, _ := f.sessions.FindByID(ctx, s.ID)
	if got.BookingID != nil || got.Booking != nil || got.EndTime != nil || got.Players == nil || len(got.Players) != 0 {
		t.Fatalf("walk-in = %+v", got)
	}
}

func TestSessionReferencesChecked(t *testing.T) {
	f := newFixture(t)
	rm := f.room(t, "Lab", model.ThemeSciFi, 6, "50")
	missing := uint64(31)

	if err := f.sessions.Create(ctx, &model.GameSession{RoomID: 99, StartTime: slot}); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("missing room: %v", err)
	}
	s := model.GameSession{RoomID: rm.ID, BookingID: &missing, StartTime: slot}
	if err := f.sessions.Create(ctx, &s); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("missing booking: %v", err)
	}
	early := slot.Add(-time.Minute)
	bad := model.GameSession{RoomID: rm.ID, StartTime: slot, EndTime: &early}
	if err := f.sessions.Create(ctx, &bad); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("end before start: %v", err)
	}
	if err := f.sessions.Delete(ctx, 1234); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestRevenue(t *testing.T) {
	f := newFixture(t)
	lab := f.room(t, "Lab", model.ThemeSciFi, 6, "50")
	crypt := f.room(t, "Crypt", model.ThemeHorror, 6, "50")
	idle := f.room(t, "Idle", model.ThemeAdventure, 6, "50")
	_ = idle

	sessions := []struct {
		room    uint64
		start   time.Time
		revenue string
	}{
		{lab.ID, slot, "50"},
		{lab.ID, slot.Add(time.Hour), "75.5"},
		{crypt.ID, slot.Add(2 * time.Hour), "30.25"},
		{crypt.ID, slot.Add(72 * time.Hour), "1000"}, // out of range
	}
	for _, s := range sessions {
		gs := model.GameSession{RoomID: s.room, StartTime: s.start, Revenue: decimal.RequireFromString(s.revenue)}
		if err := f.sessions.Create(ctx, &gs); err != nil {
			t.Fatal(err)
		}
	}

	start, end := slot, slot.Add(24*time.Hour)
	total, err := f.sessions.TotalRevenue(ctx, start, end)
	if err != nil {
		t.Fatalf("TotalRevenue: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("155.75")) {
		t.Fatalf("total = %s", total)
	}

	byRoom, err := f.sessions.RevenueByRoom(ctx, start, end)
	if err != nil {
		t.Fatalf("RevenueByRoom: %v", err)
	}
	if len(byRoom) != 2 || byRoom[0].Room.Name != "Crypt" || byRoom[1].Room.Name != "Lab" {
		t.Fatalf("byRoom = %+v", byRoom)
	}
	sum := decimal.Zero
	for _, rr := range byRoom {
		sum = sum.Add(rr.Revenue)
	}
	if !sum.Equal(total) {
		t.Fatalf("per-room sum %s != total %s", sum, total)
	}

	none, _ := f.sessions.TotalRevenue(ctx, slot.Add(-48*time.Hour), slot.Add(-24*time.Hour))
	if !none.IsZero() {
		t.Fatalf("empty range total = %s", none)
	}
	ranged, _ := f.sessions.FindByDateRange(ctx, start, end)
	if len(ranged) != 3 || !ranged[0].StartTime.Equal(slot) {
		t.Fatalf("FindByDateRange = %d sessions", len(ranged))
	}
	byLab, _ := f.sessions.FindByRoom(ctx, lab.ID)
	if len(byLab) != 2 || !byLab[0].StartTime.Equal(slot.Add(time.Hour)) {
		t.Fatalf("FindByRoom = %+v", byLab)
	}
}

func TestRevenueIsExactToTheCent(t *testing.T) {
	f := newFixture(t)
	lab := f.room(t, "Lab", model.ThemeSciFi, 6, "0.10")
	crypt := f.room(t, "Crypt", model.ThemeHorror, 6, "0.30")
	for i, s := range []struct {
		room    uint64
		revenue string
	}{
		{lab.ID, "0.10"},
		{lab.ID, "0.20"},
		{crypt.ID, "0.30"},
	} {
		gs := model.GameSession{RoomID: s.room, StartTime: slot.Add(time.Duration(i) * time.Hour),
			Revenue: decimal.RequireFromString(s.revenue)}
		if err := f.sessions.Create(ctx, &gs); err != nil {
			t.Fatal(err)
		}
	}

	start, end := slot, slot.Add(24*time.Hour)
	total, err := f.sessions.TotalRevenue(ctx, start, end)
	if err != nil {
		t.Fatal(err)
	}
	if total.String() != "0.6" {
		t.Fatalf("total = %s", total)
	}
	byRoom, err := f.sessions.RevenueByRoom(ctx, start, end)
	if err != nil {
		t.Fatal(err)
	}
	sum := decimal.Zero
	for _, rr := range byRoom {
		if rr.Revenue.String() != "0.3" {
			t.Fatalf("%s revenue = %s", rr.Room.Name, rr.Revenue)
		}
		sum = sum.Add(rr.Revenue)
	}
	if !sum.Equal(total) {
		t.Fatalf("per-room sum %s != total %s", sum, total)
	}
}
