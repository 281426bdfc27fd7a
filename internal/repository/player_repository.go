package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/escape-room-manager/internal/database"
	"github.com/iliyamo/escape-room-manager/internal/model"
)

const playerColumns = `id, first_name, last_name, email, phone, total_games_played, games_won, games_lost,
	average_time, total_hints_used, registration_date`

// DefaultTopPlayers is the leaderboard size used when no limit is given.
const DefaultTopPlayers = 10

// PlayerRepo persists players and their cumulative game statistics.
type PlayerRepo struct {
	db *sql.DB
}

func NewPlayerRepo(db *sql.DB) *PlayerRepo { return &PlayerRepo{db: db} }

func scanPlayer(sc rowScanner) (model.Player, error) { return scanPlayerWith(sc) }

// scanPlayerWith scans extra leading columns (such as a join key) before the
// player columns.
func scanPlayerWith(sc rowScanner, lead ...any) (model.Player, error) {
	var p model.Player
	var phone sql.NullString
	dest := append(lead, &p.ID, &p.FirstName, &p.LastName, &p.Email, &phone, &p.TotalGamesPlayed,
		&p.GamesWon, &p.GamesLost, &p.AverageTime, &p.TotalHintsUsed, &p.RegistrationDate)
	if err := sc.Scan(dest...); err != nil {
		return p, err
	}
	p.Phone = phone.String
	p.RegistrationDate = p.RegistrationDate.UTC()
	return p, nil
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

// FindByID returns the player or ErrPlayerNotFound.
func (r *PlayerRepo) FindByID(ctx context.Context, id uint64) (*model.Player, error) {
	return r.findOne(ctx, "SELECT "+playerColumns+" FROM players WHERE id = ?", id)
}

// FindByEmail looks a player up by email, ignoring case.
func (r *PlayerRepo) FindByEmail(ctx context.Context, email string) (*model.Player, error) {
	return r.findOne(ctx, "SELECT "+playerColumns+" FROM players WHERE email = ?", normalizeEmail(email))
}

func (r *PlayerRepo) findOne(ctx context.Context, query string, arg any) (*model.Player, error) {
	p, err := scanPlayer(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("find player: %w", err)
	}
	return &p, nil
}

// FindAll returns every player ordered by first then last name.
func (r *PlayerRepo) FindAll(ctx context.Context) ([]model.Player, error) {
	return r.list(ctx, "SELECT "+playerColumns+" FROM players ORDER BY first_name, last_name, id")
}

// SearchByName matches a case-insensitive substring of "first last".
func (r *PlayerRepo) SearchByName(ctx context.Context, name string) ([]model.Player, error) {
	const q = "SELECT " + playerColumns + ` FROM players
	           WHERE LOWER(CONCAT(first_name, ' ', last_name)) LIKE ? ESCAPE '!'
	           ORDER BY first_name, last_name, id`
	return r.list(ctx, q, likePattern(name))
}

// TopPlayers ranks players by win rate, then by number of wins.  Players who
// have not played yet have no win rate and are left out.
func (r *PlayerRepo) TopPlayers(ctx context.Context, limit int) ([]model.Player, error) {
	if limit <= 0 {
		limit = DefaultTopPlayers
	}
	const q = "SELECT " + playerColumns + ` FROM players
	           WHERE total_games_played > 0
	           ORDER BY (games_won * 1.0) / total_games_played DESC, games_won DESC, id
	           LIMIT ?`
	return r.list(ctx, q, limit)
}

func (r *PlayerRepo) list(ctx context.Context, query string, args ...any) ([]model.Player, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()
	out := make([]model.Player, 0)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return out, nil
}

// Count returns the number of registered players.
func (r *PlayerRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM players").Scan(&n); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

// Create inserts a player, stamping the registration date.  A taken email
// yields ErrDuplicate.
func (r *PlayerRepo) Create(ctx context.Context, p *model.Player) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Email = normalizeEmail(p.Email)
	p.RegistrationDate = nowUTC()
	const q = `INSERT INTO players (first_name, last_name, email, phone, total_games_played, games_won, games_lost,
	                                average_time, total_hints_used, registration_date)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, p.FirstName, p.LastName, p.Email, nullString(p.Phone),
		p.TotalGamesPlayed, p.GamesWon, p.GamesLost, p.AverageTime, p.TotalHintsUsed, p.RegistrationDate)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("player email %q: %w", p.Email, ErrDuplicate)
		}
		return fmt.Errorf("insert player: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	p.ID = uint64(id)
	return nil
}

// Update overwrites names, contact details and statistics.  The
// registration date is never changed.
func (r *PlayerRepo) Update(ctx context.Context, p *model.Player) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Email = normalizeEmail(p.Email)
	const q = `UPDATE players
	           SET first_name = ?, last_name = ?, email = ?, phone = ?, total_games_played = ?, games_won = ?,
	               games_lost = ?, average_time = ?, total_hints_used = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, p.FirstName, p.LastName, p.Email, nullString(p.Phone),
		p.TotalGamesPlayed, p.GamesWon, p.GamesLost, p.AverageTime, p.TotalHintsUsed, p.ID)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("player email %q: %w", p.Email, ErrDuplicate)
		}
		return fmt.Errorf("update player %d: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// Delete removes a player who belongs to no booking.
func (r *PlayerRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		used, err := exists(ctx, tx, "SELECT 1 FROM booking_players WHERE player_id = ? LIMIT 1", id)
		if err != nil {
			return fmt.Errorf("check player %d references: %w", id, err)
		}
		if used {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM players WHERE id = ?", id)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("delete player %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrPlayerNotFound
		}
		return nil
	})
}

// RecordGameTx adds one finished game to a player's statistics inside the
// caller's transaction.  The average time is folded in before the played
// counter moves, so MySQL's left-to-right SET evaluation and SQLite's
// snapshot evaluation agree.
func (r *PlayerRepo) RecordGameTx(ctx context.Context, tx *sql.Tx, playerID uint64, won bool, minutes, hints int) error {
	wonInc, lostInc := 0, 1
	if won {
		wonInc, lostInc = 1, 0
	}
	const q = `UPDATE players
	           SET average_time = (average_time * total_games_played + ?) / (total_games_played + 1),
	               total_games_played = total_games_played + 1,
	               games_won = games_won + ?,
	               games_lost = games_lost + ?,
	               total_hints_used = total_hints_used + ?
	           WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, float64(minutes), wonInc, lostInc, hints, playerID)
	if err != nil {
		return fmt.Errorf("record game for player %d: %w", playerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlayerNotFound
	}
	return nil
}
