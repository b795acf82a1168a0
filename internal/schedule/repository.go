package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Source produces raw route documents. Fetch reports ok=false when the
// source has no data for the route at all.
type Source interface {
	Name() string
	Fetch(ctx context.Context, routeID string) (raw RawRoute, ok bool, err error)
	RouteIDs(ctx context.Context) ([]string, error)
}

// Cache stores normalized models between loads.
type Cache interface {
	GetRoute(ctx context.Context, routeID string) (*RouteModel, bool, error)
	SetRoute(ctx context.Context, m *RouteModel) error
}

// LoadMetrics receives the outcome of every LoadRoute call:
// "hit", "miss", "absent" or "error".
type LoadMetrics interface {
	RouteLoad(result string)
}

// Repository loads routes from an ordered list of sources and normalizes
// them. The first source that knows a route wins.
type Repository struct {
	sources []Source
	cache   Cache
	metrics LoadMetrics
	logger  *slog.Logger
}

type Option func(*Repository)

func WithCache(c Cache) Option { return func(r *Repository) { r.cache = c } }

func WithLoadMetrics(m LoadMetrics) Option { return func(r *Repository) { r.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(r *Repository) { r.logger = l } }

func NewRepository(sources []Source, opts ...Option) *Repository {
	r := &Repository{sources: sources, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "schedule_repository")
	return r
}

// LoadRoute returns the normalized model for routeID. ok is false, with a
// nil error, when no source has the route. An error is returned only when
// every source that was asked failed.
func (r *Repository) LoadRoute(ctx context.Context, routeID string) (*RouteModel, bool, error) {
	if r.cache != nil {
		m, ok, err := r.cache.GetRoute(ctx, routeID)
		if err != nil {
			r.logger.Warn("route cache read failed", "route_id", routeID, "error", err)
		} else if ok {
			r.observe("hit")
			return m, true, nil
		}
	}

	var errs []error
	for _, src := range r.sources {
		raw, ok, err := src.Fetch(ctx, routeID)
		if err != nil {
			r.logger.Error("route source failed", "source", src.Name(), "route_id", routeID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if !ok {
			continue
		}
		if raw.RouteID == "" {
			raw.RouteID = routeID
		}
		m := Normalize(raw)
		if len(m.Warnings) > 0 {
			r.logger.Warn("route data normalized with warnings",
				"source", src.Name(), "route_id", routeID, "shape", m.Shape, "warnings", m.Warnings)
		}
		if r.cache != nil {
			if err := r.cache.SetRoute(ctx, m); err != nil {
				r.logger.Warn("route cache write failed", "route_id", routeID, "error", err)
			}
		}
		r.observe("miss")
		return m, true, nil
	}

	if len(errs) > 0 && len(errs) == len(r.sources) {
		r.observe("error")
		return nil, false, fmt.Errorf("load route %s: %w", routeID, errors.Join(errs...))
	}
	r.observe("absent")
	return nil, false, nil
}

// Routes lists every route id known to any source, sorted.
func (r *Repository) Routes(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var errs []error
	for _, src := range r.sources {
		ids, err := src.RouteIDs(ctx)
		if err != nil {
			r.logger.Error("route listing failed", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	if len(errs) > 0 && len(errs) == len(r.sources) {
		return nil, errors.Join(errs...)
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Repository) observe(result string) {
	if r.metrics != nil {
		r.metrics.RouteLoad(result)
	}
}
