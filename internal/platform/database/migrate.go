package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"certify/migrations"
)

// Migrate applies every pending up migration embedded in the migrations
// package. It opens its own connection so the driver can close it freely.
// An already current schema is not an error.
func Migrate(url string) error {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("load migrations: %w", err)
	}

	drv, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", drv)
	if err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("init migrator: %w", err)
	}
	defer func() {
		_, _ = m.Close()
		_ = db.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
