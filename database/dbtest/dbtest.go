// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"money-tracker-go-be/database"
)

// New returns a migrated SQLite database that lives for the duration of t.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), database.Config(gormlogger.Discard))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Seeded returns New(t) with the default categories, rules and patterns loaded.
func Seeded(t testing.TB) *gorm.DB {
	t.Helper()
	db := New(t)
	if err := database.SeedDefaults(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}
