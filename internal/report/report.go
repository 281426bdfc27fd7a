// Package report assembles the read-only views the front desk works from:
// the dashboard, revenue, the leaderboard, room performance and booking
// lists.  Every report can be flattened into a Table for export.
package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/repository"
)

// DashboardTopPlayers is the leaderboard size shown on the dashboard.
const DashboardTopPlayers = 5

// Table is a report flattened to raw cell values.
type Table struct {
	Title   string     `json:"title"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Service reads from the repositories; it never writes.
type Service struct {
	rooms    *repository.RoomRepo
	players  *repository.PlayerRepo
	bookings *repository.BookingRepo
	sessions *repository.GameSessionRepo
}

func NewService(rooms *repository.RoomRepo, players *repository.PlayerRepo,
	bookings *repository.BookingRepo, sessions *repository.GameSessionRepo) *Service {
	return &Service{rooms: rooms, players: players, bookings: bookings, sessions: sessions}
}

// Dashboard is the overview shown after login.
type Dashboard struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	TotalRooms    int              `json:"total_rooms"`
	BookingsToday int              `json:"bookings_today"`
	MonthRevenue  decimal.Decimal  `json:"month_revenue"`
	TotalPlayers  int              `json:"total_players"`
	TopPlayers    []LeaderboardRow `json:"top_players"`
}

// Dashboard gathers its figures concurrently.  "Today" and "this month" are
// calendar periods in now's location.
func (s *Service) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	d := &Dashboard{GeneratedAt: now.UTC()}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Second)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.TotalRooms, err = s.rooms.Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.BookingsToday, err = s.bookings.CountByDateRange(ctx, dayStart, dayEnd)
		return err
	})
	g.Go(func() (err error) {
		d.MonthRevenue, err = s.sessions.TotalRevenue(ctx, monthStart, now)
		return err
	})
	g.Go(func() (err error) {
		d.TotalPlayers, err = s.players.Count(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.TopPlayers, err = s.leaderboard(ctx, DashboardTopPlayers)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return d, nil
}

func (d *Dashboard) Table() Table {
	return Table{
		Title:   "Dashboard",
		Columns: []string{"metric", "value"},
		Rows: [][]string{
			{"total_rooms", strconv.Itoa(d.TotalRooms)},
			{"bookings_today", strconv.Itoa(d.BookingsToday)},
			{"month_revenue", d.MonthRevenue.StringFixed(2)},
			{"total_players", strconv.Itoa(d.TotalPlayers)},
		},
	}
}

// Revenue is the session revenue over a period with its per-room split.
type Revenue struct {
	Start  time.Time                `json:"start"`
	End    time.Time                `json:"end"`
	Total  decimal.Decimal          `json:"total"`
	ByRoom []repository.RoomRevenue `json:"by_room"`
}

// Revenue covers sessions that started within [start, end].  The per-room
// amounts always add up to the total.
func (s *Service) Revenue(ctx context.Context, start, end time.Time) (*Revenue, error) {
	if end.Before(start) {
		return nil, &model.ValidationError{Fields: []string{"end must not be before start"}}
	}
	byRoom, err := s.sessions.RevenueByRoom(ctx, start, end)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, rr := range byRoom {
		total = total.Add(rr.Revenue)
	}
	return &Revenue{Start: start.UTC(), End: end.UTC(), Total: total, ByRoom: byRoom}, nil
}

func (r *Revenue) Table() Table {
	t := Table{
		Title:   fmt.Sprintf("Revenue %s to %s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly)),
		Columns: []string{"room_id", "room", "revenue"},
	}
	for _, rr := range r.ByRoom {
		t.Rows = append(t.Rows, []string{
			strconv.FormatUint(rr.Room.ID, 10), rr.Room.Name, rr.Revenue.StringFixed(2)})
	}
	t.Rows = append(t.Rows, []string{"", "TOTAL", r.Total.StringFixed(2)})
	return t
}

// LeaderboardRow is one ranked player.
type LeaderboardRow struct {
	Rank        int     `json:"rank"`
	PlayerID    uint64  `json:"player_id"`
	Name        string  `json:"name"`
	GamesPlayed int     `json:"games_played"`
	GamesWon    int     `json:"games_won"`
	WinRate     float64 `json:"win_rate"`
	AverageTime float64 `json:"average_time"`
}

// Leaderboard ranks players who have played at least once.
type Leaderboard struct {
	Rows []LeaderboardRow `json:"rows"`
}

func (s *Service) Leaderboard(ctx context.Context, limit int) (*Leaderboard, error) {
	rows, err := s.leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &Leaderboard{Rows: rows}, nil
}

func (s *Service) leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	top, err := s.players.TopPlayers(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardRow, len(top))
	for i, p := range top {
		out[i] = LeaderboardRow{
			Rank:        i + 1,
			PlayerID:    p.ID,
			Name:        p.FullName(),
			GamesPlayed: p.TotalGamesPlayed,
			GamesWon:    p.GamesWon,
			WinRate:     p.WinRate(),
			AverageTime: p.AverageTime,
		}
	}
	return out, nil
}

func (l *Leaderboard) Table() Table {
	t := Table{
		Title:   "Leaderboard",
		Columns: []string{"rank", "player", "games", "wins", "win_rate", "average_time"},
	}
	for _, r := range l.Rows {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Rank), r.Name, strconv.Itoa(r.GamesPlayed), strconv.Itoa(r.GamesWon),
			strconv.FormatFloat(r.WinRate, 'f', 1, 64), strconv.FormatFloat(r.AverageTime, 'f', 1, 64),
		})
	}
	return t
}

// RoomPerformance lists every room with its rating, price and state.
type RoomPerformance struct {
	Rooms []model.Room `json:"rooms"`
}

func (s *Service) RoomPerformance(ctx context.Context) (*RoomPerformance, error) {
	rooms, err := s.rooms.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return &RoomPerformance{Rooms: rooms}, nil
}

func (p *RoomPerformance) Table() Table {
	t := Table{
		Title:   "Room performance",
		Columns: []string{"room_id", "room", "theme", "difficulty", "capacity", "price", "average_rating", "active"},
	}
	for _, rm := range p.Rooms {
		t.Rows = append(t.Rows, []string{
			strconv.FormatUint(rm.ID, 10), rm.Name, string(rm.Theme), strconv.Itoa(rm.Difficulty),
			strconv.Itoa(rm.Capacity), rm.Price.StringFixed(2), strconv.FormatFloat(rm.AverageRating, 'f', 2, 64),
			strconv.FormatBool(rm.IsActive),
		})
	}
	return t
}

// BookingList is every booking, or those in one status.
type BookingList struct {
	Status   model.BookingStatus `json:"status,omitempty"`
	Count    int                 `json:"count"`
	Bookings []model.Booking     `json:"bookings"`
}

// Bookings lists bookings; an empty status means all of them.
func (s *Service) Bookings(ctx context.Context, status model.BookingStatus) (*BookingList, error) {
	var (
		list []model.Booking
		err  error
	)
	if status == "" {
		list, err = s.bookings.FindAll(ctx)
	} else {
		list, err = s.bookings.FindByStatus(ctx, status)
	}
	if err != nil {
		return nil, err
	}
	return &BookingList{Status: status, Count: len(list), Bookings: list}, nil
}

func (l *BookingList) Table() Table {
	title := "Bookings"
	if l.Status != "" {
		title += " (" + string(l.Status) + ")"
	}
	t := Table{
		Title:   title,
		Columns: []string{"booking_id", "room", "scheduled_time", "status", "players", "total_price"},
	}
	for _, b := range l.Bookings {
		room := ""
		if b.Room != nil {
			room = b.Room.Name
		}
		t.Rows = append(t.Rows, []string{
			strconv.FormatUint(b.ID, 10), room, b.ScheduledTime.UTC().Format(time.RFC3339), string(b.Status),
			strconv.Itoa(b.NumberOfPlayers), b.TotalPrice.StringFixed(2),
		})
	}
	return t
}
