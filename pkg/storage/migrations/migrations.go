// Package migrations embeds the relational schema and applies it with
// golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx PostgreSQL driver as "pgx"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// Direction selects which way Run moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// SQLite applies every pending sqlite migration on db. The handle stays
// open: the sqlite migrate driver would close it on shutdown, so the
// migrate instance is deliberately not closed.
func SQLite(db *sql.DB) error {
	src, err := iofs.New(sqliteFS, "sqlite")
	if err != nil {
		return fmt.Errorf("opening sqlite migrations: %w", err)
	}

	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("preparing sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("creating sqlite migrator: %w", err)
	}

	return apply(m, Up, 0)
}

// Postgres runs the postgres migrations against dsn on a dedicated
// connection that is closed before returning. steps == 0 means all.
func Postgres(dsn string, direction Direction, steps int) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	src, err := iofs.New(postgresFS, "postgres")
	if err != nil {
		db.Close()
		return fmt.Errorf("opening postgres migrations: %w", err)
	}

	drv, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("preparing postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", drv)
	if err != nil {
		db.Close()
		return fmt.Errorf("creating postgres migrator: %w", err)
	}
	defer m.Close()

	return apply(m, direction, steps)
}

func apply(m *migrate.Migrate, direction Direction, steps int) error {
	var err error
	switch direction {
	case Up:
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case Down:
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
