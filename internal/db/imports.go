package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nextbus/internal/schedule"
)

// FetchLatestImport returns the raw documents of the most recent successful
// import for routeID. ok is false when the route was never imported.
func FetchLatestImport(ctx context.Context, db *sql.DB, routeID string) (schedule.RawRoute, bool, error) {
	routeID = strings.TrimSpace(routeID)
	if routeID == "" {
		return schedule.RawRoute{}, false, nil
	}
	q := `
SELECT COALESCE(stops::text, ''), COALESCE(schedule::text, '')
FROM timetable_imports
WHERE route_id = $1 AND status = 'success'
ORDER BY imported_at DESC, id DESC
LIMIT 1`
	var stops, sched string
	if err := db.QueryRowContext(ctx, q, routeID).Scan(&stops, &sched); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schedule.RawRoute{}, false, nil
		}
		return schedule.RawRoute{}, false, fmt.Errorf("query latest import for route %q: %w", routeID, err)
	}
	return schedule.RawRoute{RouteID: routeID, Stops: []byte(stops), Schedule: []byte(sched)}, true, nil
}

// SaveImport records a successful import of raw. Used by seeding and tests.
func SaveImport(ctx context.Context, db *sql.DB, raw schedule.RawRoute) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO timetable_imports (route_id, stops, schedule) VALUES ($1, $2::jsonb, $3::jsonb)`,
		raw.RouteID, nullJSON(raw.Stops), nullJSON(raw.Schedule))
	if err != nil {
		return fmt.Errorf("insert import for route %q: %w", raw.RouteID, err)
	}
	return nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
