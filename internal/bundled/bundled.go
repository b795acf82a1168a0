// Package bundled serves the timetables shipped inside the binary, so the
// service answers offline and before any database is configured.
package bundled

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"path"
	"sort"

	"nextbus/internal/schedule"
)

//go:embed routes
var routesFS embed.FS

// Source reads routes/<id>/stops.json and routes/<id>/schedule.json.
type Source struct {
	fsys fs.FS
}

// New returns a source over the embedded timetables.
func New() *Source {
	return &Source{fsys: routesFS}
}

// NewFS returns a source over any tree laid out like the embedded one.
func NewFS(fsys fs.FS) *Source {
	return &Source{fsys: fsys}
}

func (s *Source) Name() string { return "bundled" }

func (s *Source) Fetch(_ context.Context, routeID string) (schedule.RawRoute, bool, error) {
	if routeID == "." || !fs.ValidPath(routeID) || path.Base(routeID) != routeID {
		return schedule.RawRoute{}, false, nil
	}
	dir := path.Join("routes", routeID)
	if _, err := fs.Stat(s.fsys, dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return schedule.RawRoute{}, false, nil
		}
		return schedule.RawRoute{}, false, err
	}
	// A missing document is left empty for the normalizer to report.
	stops, err := fs.ReadFile(s.fsys, path.Join(dir, "stops.json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return schedule.RawRoute{}, false, err
	}
	sched, err := fs.ReadFile(s.fsys, path.Join(dir, "schedule.json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return schedule.RawRoute{}, false, err
	}
	return schedule.RawRoute{RouteID: routeID, Stops: stops, Schedule: sched}, true, nil
}

func (s *Source) RouteIDs(context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, "routes")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
