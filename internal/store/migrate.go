package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var migrationFiles embed.FS

const sqlitePrefix = "sqlite3://"

// IsSQLite reports whether databaseURL selects the SQLite backend.
func IsSQLite(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, sqlitePrefix)
}

// SQLitePath strips the sqlite3:// scheme from databaseURL.
func SQLitePath(databaseURL string) string {
	return strings.TrimPrefix(databaseURL, sqlitePrefix)
}

// RunMigrations applies the embedded migrations for the backend selected by databaseURL.
func RunMigrations(databaseURL string) error {
	if IsSQLite(databaseURL) {
		db, err := sql.Open("sqlite3", sqliteDSN(SQLitePath(databaseURL)))
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer db.Close()
		return MigrateSQLite(db)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("postgres driver: %w", err)
	}
	m, err := newMigrate("postgres", driver)
	if err != nil {
		driver.Close()
		return err
	}
	defer m.Close()
	return up(m)
}

// MigrateSQLite applies the SQLite migrations on an open handle. The caller
// keeps ownership of db; the migrate instance is not closed because that
// would close db too.
func MigrateSQLite(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite3 driver: %w", err)
	}
	m, err := newMigrate("sqlite3", driver)
	if err != nil {
		return err
	}
	return up(m)
}

func newMigrate(name string, driver database.Driver) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations/"+name)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return nil, fmt.Errorf("migrate.NewWithInstance: %w", err)
	}
	return m, nil
}

func up(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate.Up: %w", err)
	}
	return nil
}
