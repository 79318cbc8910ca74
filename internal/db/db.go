package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrUnavailable marks driver failures the caller may retry.
var ErrUnavailable = errors.New("store unavailable")

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// DB is a *sql.DB that remembers which placeholder style its driver wants.
type DB struct {
	*sql.DB
	Dialect Dialect
}

func Connect(ctx context.Context, dialect Dialect, connString string) (*DB, error) {
	switch dialect {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", dialect)
	}

	sqlDB, err := sql.Open(string(dialect), connString)
	if err != nil {
		return nil, err
	}

	if dialect == SQLite {
		// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

// Rebind rewrites $N placeholders into ?N for sqlite. Queries are written postgres-style.
func (d *DB) Rebind(query string) string {
	if d.Dialect != SQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}

// Migrate creates the tables the service needs if they are missing.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if d.Dialect == SQLite {
		stmts = sqliteSchema
	}
	for _, s := range stmts {
		if _, err := d.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id             BIGSERIAL PRIMARY KEY,
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		deadline       INTEGER NOT NULL CHECK (deadline >= 0),
		duration       DOUBLE PRECISION NOT NULL CHECK (duration > 0),
		importance     DOUBLE PRECISION NOT NULL,
		stress         DOUBLE PRECISION NOT NULL,
		fun            DOUBLE PRECISION NOT NULL,
		penalty_late   DOUBLE PRECISION NOT NULL,
		status         TEXT NOT NULL DEFAULT 'backlog',
		ignored_count  INTEGER NOT NULL DEFAULT 0,
		completed_date TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS preference_weights (
		session_id  TEXT PRIMARY KEY,
		importance  DOUBLE PRECISION NOT NULL,
		urgency     DOUBLE PRECISION NOT NULL,
		fun         DOUBLE PRECISION NOT NULL,
		stress      DOUBLE PRECISION NOT NULL,
		penalty     DOUBLE PRECISION NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feedback_events (
		id               TEXT PRIMARY KEY,
		session_id       TEXT NOT NULL,
		task_id          BIGINT NOT NULL,
		outcome          TEXT NOT NULL,
		features         JSONB NOT NULL,
		platform         TEXT NOT NULL DEFAULT 'unknown',
		app_version      TEXT NOT NULL DEFAULT '',
		source_event_key TEXT UNIQUE,
		event_time       TIMESTAMPTZ NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		deadline       INTEGER NOT NULL CHECK (deadline >= 0),
		duration       REAL NOT NULL CHECK (duration > 0),
		importance     REAL NOT NULL,
		stress         REAL NOT NULL,
		fun            REAL NOT NULL,
		penalty_late   REAL NOT NULL,
		status         TEXT NOT NULL DEFAULT 'backlog',
		ignored_count  INTEGER NOT NULL DEFAULT 0,
		completed_date TIMESTAMP,
		created_at     TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS preference_weights (
		session_id  TEXT PRIMARY KEY,
		importance  REAL NOT NULL,
		urgency     REAL NOT NULL,
		fun         REAL NOT NULL,
		stress      REAL NOT NULL,
		penalty     REAL NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feedback_events (
		id               TEXT PRIMARY KEY,
		session_id       TEXT NOT NULL,
		task_id          INTEGER NOT NULL,
		outcome          TEXT NOT NULL,
		features         TEXT NOT NULL,
		platform         TEXT NOT NULL DEFAULT 'unknown',
		app_version      TEXT NOT NULL DEFAULT '',
		source_event_key TEXT UNIQUE,
		event_time       TIMESTAMP NOT NULL
	)`,
}
