// Package storage keeps the dedup ledger: the durable record of which album
// items were already published.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"album_poster/internal/config"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Open connects to the configured ledger backend and brings its schema up to
// date. SQLite files are created under the ledger directory.
func Open(ctx context.Context, cfg config.LedgerConfig) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case config.LedgerDriverPostgres:
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
	default:
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		db, err = OpenSQLite(ctx, cfg.Path())
		if err != nil {
			return nil, err
		}
	}

	if err := Migrate(db, cfg.Driver); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenSQLite opens the ledger file at path without migrating it.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"

	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}

	// one writer; every statement inside a transaction goes through the tx
	db.SetMaxOpenConns(1)

	return db, nil
}

// Migrate applies the embedded migrations for driver. The migrate instance is
// left open since closing it closes db too.
func Migrate(db *sqlx.DB, driver string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var dbDriver database.Driver
	switch driver {
	case config.LedgerDriverPostgres:
		dbDriver, err = migratepg.WithInstance(db.DB, &migratepg.Config{})
	case config.LedgerDriverSQLite:
		dbDriver, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	default:
		err = fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return src.Close()
}
