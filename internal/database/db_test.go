package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iliyamo/escape-room-manager/internal/config"
)

func openSQLite(t *testing.T) (config.DBConfig, func()) {
	t.Helper()
	cfg := config.DBConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "nested", "app.db")}
	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := Migrate(context.Background(), db, cfg.Driver); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return cfg, func() { _ = db.Close() }
}

func TestMigrateIsIdempotent(t *testing.T) {
	cfg, closeDB := openSQLite(t)
	defer closeDB()

	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if err := Migrate(context.Background(), db, cfg.Driver); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestMigrateUnknownDriver(t *testing.T) {
	if err := Migrate(context.Background(), nil, "oracle"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestMySQLDataSourceName(t *testing.T) {
	dsn, err := dataSourceName(config.DriverMySQL, config.DBConfig{
		User: "app", Pass: "pw", Host: "db", Port: "3306", Name: "escape_room",
	})
	if err != nil {
		t.Fatalf("dataSourceName: %v", err)
	}
	if !strings.HasPrefix(dsn, "app:pw@tcp(db:3306)/escape_room?") {
		t.Fatalf("dsn = %q", dsn)
	}
	for _, opt := range []string{"parseTime=true", "loc=UTC", "clientFoundRows=true"} {
		if !strings.Contains(dsn, opt) {
			t.Fatalf("dsn %q missing %s", dsn, opt)
		}
	}
}

func TestConstraintClassification(t *testing.T) {
	cfg := config.DBConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "c.db")}
	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := Migrate(context.Background(), db, cfg.Driver); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	ctx := context.Background()

	const insUser = `INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insUser, "alice", "x", "STAFF"); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	_, err = db.ExecContext(ctx, insUser, "alice", "y", "STAFF")
	if !IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if IsForeignKeyViolation(err) {
		t.Fatalf("duplicate key misclassified as foreign key violation")
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO bookings (room_id, scheduled_time, booking_date, status, number_of_players, total_price, notes)
		 VALUES (999, '2026-01-01 10:00:00+00:00', '2026-01-01 09:00:00+00:00', 'PENDING', 2, 10, '')`)
	if !IsForeignKeyViolation(err) {
		t.Fatalf("expected foreign key violation, got %v", err)
	}
	if IsDuplicateKey(nil) || IsForeignKeyViolation(nil) {
		t.Fatalf("nil error must not classify")
	}
}
