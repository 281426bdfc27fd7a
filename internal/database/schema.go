package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/escape-room-manager/internal/config"
)

// Migrate creates the application tables when they do not exist yet.  The
// statements are idempotent, so it is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case config.DriverMySQL:
		stmts = mysqlSchema
	case config.DriverSQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// usernames are compared byte-wise (utf8mb4_bin) so "Alice" and "alice" are distinct.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		theme VARCHAR(20) NOT NULL,
		difficulty TINYINT NOT NULL,
		capacity INT NOT NULL,
		price DECIMAL(10,2) NOT NULL DEFAULT 0,
		duration INT NOT NULL,
		description TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		average_rating DOUBLE NOT NULL DEFAULT 0,
		INDEX idx_rooms_theme (theme)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS players (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		first_name VARCHAR(50) NOT NULL,
		last_name VARCHAR(50) NOT NULL,
		email VARCHAR(255) NOT NULL,
		phone VARCHAR(20) NULL,
		total_games_played INT NOT NULL DEFAULT 0,
		games_won INT NOT NULL DEFAULT 0,
		games_lost INT NOT NULL DEFAULT 0,
		average_time DOUBLE NOT NULL DEFAULT 0,
		total_hints_used INT NOT NULL DEFAULT 0,
		registration_date DATETIME NOT NULL,
		UNIQUE KEY uq_players_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		room_id BIGINT UNSIGNED NOT NULL,
		scheduled_time DATETIME NOT NULL,
		booking_date DATETIME NOT NULL,
		status VARCHAR(20) NOT NULL,
		number_of_players INT NOT NULL,
		total_price DECIMAL(10,2) NOT NULL DEFAULT 0,
		notes TEXT NOT NULL,
		INDEX idx_bookings_slot (room_id, scheduled_time),
		INDEX idx_bookings_status (status),
		CONSTRAINT fk_bookings_room FOREIGN KEY (room_id) REFERENCES rooms(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS booking_players (
		booking_id BIGINT UNSIGNED NOT NULL,
		player_id BIGINT UNSIGNED NOT NULL,
		PRIMARY KEY (booking_id, player_id),
		CONSTRAINT fk_bp_booking FOREIGN KEY (booking_id) REFERENCES bookings(id),
		CONSTRAINT fk_bp_player FOREIGN KEY (player_id) REFERENCES players(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS game_sessions (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		booking_id BIGINT UNSIGNED NULL,
		room_id BIGINT UNSIGNED NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		time_spent INT NOT NULL DEFAULT 0,
		hints_used INT NOT NULL DEFAULT 0,
		rating TINYINT NULL,
		review TEXT NOT NULL,
		revenue DECIMAL(10,2) NOT NULL DEFAULT 0,
		INDEX idx_sessions_start (start_time),
		CONSTRAINT fk_sessions_booking FOREIGN KEY (booking_id) REFERENCES bookings(id),
		CONSTRAINT fk_sessions_room FOREIGN KEY (room_id) REFERENCES rooms(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(50) COLLATE utf8mb4_bin NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(10) NOT NULL,
		first_name VARCHAR(50) NOT NULL DEFAULT '',
		last_name VARCHAR(50) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		UNIQUE KEY uq_users_username (username)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		UNIQUE KEY uq_refresh_hash (token_hash),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		theme TEXT NOT NULL,
		difficulty INTEGER NOT NULL,
		capacity INTEGER NOT NULL,
		price NUMERIC NOT NULL DEFAULT 0,
		duration INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		average_rating REAL NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_theme ON rooms(theme)`,
	`CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT NULL,
		total_games_played INTEGER NOT NULL DEFAULT 0,
		games_won INTEGER NOT NULL DEFAULT 0,
		games_lost INTEGER NOT NULL DEFAULT 0,
		average_time REAL NOT NULL DEFAULT 0,
		total_hints_used INTEGER NOT NULL DEFAULT 0,
		registration_date DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id INTEGER NOT NULL REFERENCES rooms(id),
		scheduled_time DATETIME NOT NULL,
		booking_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		number_of_players INTEGER NOT NULL,
		total_price NUMERIC NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(room_id, scheduled_time)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
	`CREATE TABLE IF NOT EXISTS booking_players (
		booking_id INTEGER NOT NULL REFERENCES bookings(id),
		player_id INTEGER NOT NULL REFERENCES players(id),
		PRIMARY KEY (booking_id, player_id)
	)`,
	`CREATE TABLE IF NOT EXISTS game_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		booking_id INTEGER NULL REFERENCES bookings(id),
		room_id INTEGER NOT NULL REFERENCES rooms(id),
		start_time DATETIME NOT NULL,
		end_time DATETIME NULL,
		completed BOOLEAN NOT NULL DEFAULT 0,
		time_spent INTEGER NOT NULL DEFAULT 0,
		hints_used INTEGER NOT NULL DEFAULT 0,
		rating INTEGER NULL,
		review TEXT NOT NULL DEFAULT '',
		revenue NUMERIC NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_start ON game_sessions(start_time)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL
	)`,
}
