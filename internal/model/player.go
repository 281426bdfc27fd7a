package model

import (
	"strings"
	"time"
)

// Player mirrors the `players` table.  The counters are cumulative over every
// recorded game session.
type Player struct {
	ID               uint64    `json:"id"`
	FirstName        string    `json:"first_name" validate:"required,max=50"`
	LastName         string    `json:"last_name" validate:"required,max=50"`
	Email            string    `json:"email" validate:"required,email,max=255"`
	Phone            string    `json:"phone,omitempty" validate:"omitempty,phone"`
	TotalGamesPlayed int       `json:"total_games_played" validate:"min=0"`
	GamesWon         int       `json:"games_won" validate:"min=0,ltefield=TotalGamesPlayed"`
	GamesLost        int       `json:"games_lost" validate:"min=0,ltefield=TotalGamesPlayed"`
	AverageTime      float64   `json:"average_time" validate:"min=0"` // minutes
	TotalHintsUsed   int       `json:"total_hints_used" validate:"min=0"`
	RegistrationDate time.Time `json:"registration_date"`
}

// Validate checks names, contact details and counters.
func (p *Player) Validate() error {
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	return check(p)
}

// FullName joins first and last name with a single space.
func (p *Player) FullName() string { return p.FirstName + " " + p.LastName }

// WinRate is the percentage of games won, 0 when no game was played.
func (p *Player) WinRate() float64 {
	if p.TotalGamesPlayed == 0 {
		return 0
	}
	return float64(p.GamesWon) / float64(p.TotalGamesPlayed) * 100
}
