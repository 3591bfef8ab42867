package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Direction selects the migration direction.
type Direction int

const (
	Up Direction = iota
	Down
)

func newMigrator(db *sql.DB, driver string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	var drv database.Driver
	switch driver {
	case DriverSQLite:
		drv, err = sqlite.WithInstance(db, &sqlite.Config{})
	case DriverPostgres:
		drv, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		err = fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return migrate.NewWithInstance("iofs", src, driver, drv)
}

// Migrate applies the embedded migrations in dir. It returns the resulting
// schema version. The migrator is not closed since that would close db.
func Migrate(db *sql.DB, driver string, dir Direction) (uint, error) {
	m, err := newMigrator(db, driver)
	if err != nil {
		return 0, fmt.Errorf("init migrations: %w", err)
	}
	switch dir {
	case Down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	v, _, verr := m.Version()
	if errors.Is(verr, migrate.ErrNilVersion) {
		return 0, nil
	}
	return v, verr
}

// Migrate applies the migrations on the store connection.
func (s *Store) Migrate(dir Direction) (uint, error) {
	return Migrate(s.db.DB, s.db.DriverName(), dir)
}
