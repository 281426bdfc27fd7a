package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Theme is the fixed category set a room belongs to.
type Theme string

const (
	ThemeHorror    Theme = "Horror"
	ThemeMystery   Theme = "Mystery"
	ThemeSciFi     Theme = "Sci-Fi"
	ThemeAdventure Theme = "Adventure"
)

// Themes lists every valid theme in display order.
var Themes = []Theme{ThemeHorror, ThemeMystery, ThemeSciFi, ThemeAdventure}

// ParseTheme matches a theme name case-insensitively.
func ParseTheme(s string) (Theme, bool) {
	for _, t := range Themes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return "", false
}

// Room mirrors the `rooms` table.
type Room struct {
	ID          uint64          `json:"id"`
	Name        string          `json:"name" validate:"required,max=100"`
	Theme       Theme           `json:"theme" validate:"required,oneof=Horror Mystery Sci-Fi Adventure"`
	Difficulty  int             `json:"difficulty" validate:"min=1,max=5"`
	Capacity    int             `json:"capacity" validate:"min=1"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Duration    int             `json:"duration" validate:"min=1"` // minutes
	Description string          `json:"description"`
	IsActive    bool            `json:"is_active"`
	// AverageRating changes only through rating aggregation over sessions.
	AverageRating float64 `json:"average_rating" validate:"min=0,max=5"`
}

// Validate checks field ranges before the room reaches the store.
func (r *Room) Validate() error { return check(r) }

// CalculatePrice returns the price of a booking for the given party size.
// Rooms are priced per booking, not per person.
func (r *Room) CalculatePrice(int) decimal.Decimal { return r.Price }

// ValidRating reports whether v is an acceptable average rating.
func ValidRating(v float64) bool { return v >= 0 && v <= 5 }
