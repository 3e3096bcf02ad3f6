package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"money-tracker-go-be/models"
)

// zerologWriter routes gorm's logger through zerolog.
type zerologWriter struct {
	log zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...interface{}) {
	w.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// NewGormLogger builds a gorm logger that logs statements at Info in development and only slow/failed ones in production.
func NewGormLogger(log zerolog.Logger, production bool) gormlogger.Interface {
	level := gormlogger.Info
	if production {
		level = gormlogger.Warn
	}
	return gormlogger.New(zerologWriter{log: log.With().Str("component", "gorm").Logger()}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// Config returns the gorm settings shared by every dialect.
func Config(l gormlogger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger:         l,
		TranslateError: true,
	}
}

// Connect opens the Postgres database at dsn and migrates the schema.
func Connect(dsn string, log zerolog.Logger, production bool) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	if !strings.Contains(dsn, "sslmode") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=require"
	}

	db, err := gorm.Open(postgres.Open(dsn), Config(NewGormLogger(log, production)))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Info().Msg("connected to database")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info().Msg("database migrated")
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
