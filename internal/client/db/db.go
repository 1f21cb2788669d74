// Package db opens the local SQLite upload journal and keeps its schema
// current.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/contentup/internal/client/migrations"
	"github.com/dmitrijs2005/contentup/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// DataDir is the directory, relative to the working directory, that holds
// the journal when no DSN is configured.
const DataDir = ".contentup"

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// DefaultDSN returns the journal path under DataDir, creating the directory.
func DefaultDSN() (string, error) {
	return filex.DataPath(DataDir, "uploads.db")
}

// InitDatabase opens dsn (DefaultDSN when empty) and applies migrations.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		var err error
		if dsn, err = DefaultDSN(); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// a single connection keeps ":memory:" databases and write locking sane
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
