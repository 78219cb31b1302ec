// Package store opens the local SQLite databases and applies their embedded
// migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/dmitrijs2005/tripkeeper/internal/client/migrations"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const (
	// DriverName is the database/sql driver registered by modernc.org/sqlite.
	DriverName = "sqlite"

	StoreFile    = "store.db"
	SettingsFile = "settings.db"
)

// DSN builds a modernc.org/sqlite connection string for path.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}

// RunMigrations applies every pending migration found at the root of fsys.
func RunMigrations(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Open opens the database at path, migrates it with fsys and limits it to a
// single connection, which serializes every transaction on the file.
func Open(ctx context.Context, path string, fsys fs.FS) (*sql.DB, error) {
	db, err := sql.Open(DriverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}

	if err := RunMigrations(ctx, db, fsys); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenStore opens dir/store.db.
func OpenStore(ctx context.Context, dir string) (*sql.DB, error) {
	fsys, err := fs.Sub(migrations.Store, "store")
	if err != nil {
		return nil, err
	}
	return Open(ctx, filepath.Join(dir, StoreFile), fsys)
}

// OpenSettings opens dir/settings.db.
func OpenSettings(ctx context.Context, dir string) (*sql.DB, error) {
	fsys, err := fs.Sub(migrations.Settings, "settings")
	if err != nil {
		return nil, err
	}
	return Open(ctx, filepath.Join(dir, SettingsFile), fsys)
}
