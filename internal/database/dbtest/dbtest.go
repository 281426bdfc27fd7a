// Package dbtest opens throwaway sqlite databases with the application schema
// for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iliyamo/escape-room-manager/internal/config"
	"github.com/iliyamo/escape-room-manager/internal/database"
)

// Open returns a migrated database stored under t.TempDir().  It is closed
// when the test finishes.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	cfg := config.DBConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "escape_room.db"),
	}
	db, err := database.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db, cfg.Driver); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}
