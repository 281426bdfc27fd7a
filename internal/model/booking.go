package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCompleted BookingStatus = "COMPLETED"
	StatusCancelled BookingStatus = "CANCELLED"
)

// transitions holds the allowed moves out of each non-terminal status.
var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// ParseBookingStatus matches a status name case-insensitively.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	st := BookingStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Valid reports whether s is one of the four known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s BookingStatus) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

// CanTransitionTo reports whether a booking in status s may move to next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking mirrors the `bookings` table together with its player links.
// PlayerIDs is the write side of the association; Room and Players are
// materialized on read.
type Booking struct {
	ID              uint64          `json:"id"`
	RoomID          uint64          `json:"room_id" validate:"required"`
	Room            *Room           `json:"room,omitempty" validate:"-"`
	PlayerIDs       []uint64        `json:"player_ids" validate:"dive,required"`
	Players         []Player        `json:"players" validate:"-"`
	BookingDate     time.Time       `json:"booking_date"`
	ScheduledTime   time.Time       `json:"scheduled_time" validate:"required"`
	Status          BookingStatus   `json:"status" validate:"required,oneof=PENDING CONFIRMED COMPLETED CANCELLED"`
	NumberOfPlayers int             `json:"number_of_players" validate:"min=1"`
	TotalPrice      decimal.Decimal `json:"total_price" validate:"gte=0"`
	Notes           string          `json:"notes" validate:"max=2000"`
}

// Validate checks the booking row; referenced rows are checked by the store.
func (b *Booking) Validate() error {
	b.PlayerIDs = UniqueIDs(b.PlayerIDs)
	return check(b)
}

// UniqueIDs drops duplicates while keeping the first occurrence order.
func UniqueIDs(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
