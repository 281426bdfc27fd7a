package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameSession is one play-through of a room.  Walk-in sessions have no
// booking; otherwise Players is taken from the booking when read.
type GameSession struct {
	ID        uint64     `json:"id"`
	BookingID *uint64    `json:"booking_id,omitempty"`
	Booking   *Booking   `json:"booking,omitempty" validate:"-"`
	RoomID    uint64     `json:"room_id" validate:"required"`
	Room      *Room      `json:"room,omitempty" validate:"-"`
	Players   []Player   `json:"players" validate:"-"`
	StartTime time.Time  `json:"start_time" validate:"required"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Completed bool       `json:"completed"`
	TimeSpent int        `json:"time_spent" validate:"min=0"` // minutes
	HintsUsed int        `json:"hints_used" validate:"min=0"`
	// Rating is nil when the team left no rating; 0 is treated the same way.
	Rating  *int            `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Review  string          `json:"review"`
	Revenue decimal.Decimal `json:"revenue" validate:"gte=0"`
}

// Validate normalizes an unset rating and checks the session fields.
func (s *GameSession) Validate() error {
	if s.Rating != nil && *s.Rating == 0 {
		s.Rating = nil
	}
	if s.BookingID != nil && *s.BookingID == 0 {
		s.BookingID = nil
	}
	var extra string
	if s.EndTime != nil && s.EndTime.Before(s.StartTime) {
		extra = "end_time must not be before start_time"
	}
	return check(s, extra)
}

// HasRating reports whether a rating was recorded.
func (s *GameSession) HasRating() bool { return s.Rating != nil }

// Finished reports whether the session counts towards player statistics.
func (s *GameSession) Finished() bool { return s.Completed || s.EndTime != nil }
