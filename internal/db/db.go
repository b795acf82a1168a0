package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"nextbus/internal/schedule"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Schema creates the table timetable importers write into. Each import is a
// new row; readers take the most recent successful one per route.
const Schema = `
CREATE TABLE IF NOT EXISTS timetable_imports (
  id          BIGSERIAL PRIMARY KEY,
  route_id    TEXT        NOT NULL,
  stops       JSONB,
  schedule    JSONB,
  status      TEXT        NOT NULL DEFAULT 'success',
  imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS timetable_imports_route_idx
  ON timetable_imports (route_id, imported_at DESC);
`

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create timetable_imports: %w", err)
	}
	return nil
}

// Source is a schedule.Source backed by timetable_imports.
type Source struct {
	db *sql.DB
}

func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

func (s *Source) Name() string { return "postgres" }

func (s *Source) Fetch(ctx context.Context, routeID string) (schedule.RawRoute, bool, error) {
	return FetchLatestImport(ctx, s.db, routeID)
}

func (s *Source) RouteIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT route_id FROM timetable_imports WHERE status = 'success' ORDER BY route_id`)
	if err != nil {
		return nil, fmt.Errorf("query route ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
