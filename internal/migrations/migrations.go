// Package migrations embeds the schema for both supported databases and
// applies it with golang-migrate.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

// Run brings the schema up to date. The dialect is picked from the driver dbx was opened with.
func Run(dbx *sqlx.DB) error {
	var (
		dir    string
		name   string
		driver database.Driver
		err    error
	)
	switch dbx.DriverName() {
	case "sqlite":
		dir, name = "sqlite", "sqlite"
		driver, err = sqlite.WithInstance(dbx.DB, &sqlite.Config{})
	case "pgx":
		dir, name = "postgres", "pgx5"
		driver, err = pgxmigrate.WithInstance(dbx.DB, &pgxmigrate.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", dbx.DriverName())
	}
	if err != nil {
		return fmt.Errorf("error creating %s instance for migration: %s", name, err)
	}

	return up(migrationsFS, dir, name, driver)
}

func up(fsys fs.FS, dir, name string, driver database.Driver) error {
	d, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("error creating migrations source: %s", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", d, name, driver)
	if err != nil {
		return fmt.Errorf("error creating migrator: %s", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("error migrating: %s", err)
	}
	slog.Info("migrated", "dialect", dir)

	return nil
}
