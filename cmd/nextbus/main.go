package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nextbus/internal/api"
	"nextbus/internal/bundled"
	"nextbus/internal/cache"
	"nextbus/internal/clock"
	"nextbus/internal/config"
	"nextbus/internal/countdown"
	"nextbus/internal/db"
	"nextbus/internal/logging"
	"nextbus/internal/metrics"
	"nextbus/internal/prefs"
	"nextbus/internal/publisher"
	"nextbus/internal/schedule"
)

func main() {
	seed := flag.Bool("seed", false, "copy the bundled timetables into Postgres and exit")
	flag.Parse()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *seed); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, seed bool) error {
	clk, err := newClock(cfg, logger)
	if err != nil {
		return err
	}

	mcol := metrics.NewCollector(cfg.TickInterval, cfg.RefreshInterval)
	readyChecks := map[string]api.ReadyCheck{}

	// Postgres is optional; without it only bundled data is served.
	var sources []schedule.Source
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		sqlDB, err = openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		sources = append(sources, db.NewSource(sqlDB))
		readyChecks["postgres"] = func(ctx context.Context) error { return db.Ping(ctx, sqlDB) }
	}
	bundledSrc := bundled.New()
	sources = append(sources, bundledSrc)

	var routeCache *cache.RouteCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			// A cache outage only costs extra source reads.
			logger.Warn("redis unavailable, continuing without route cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rc.Close()
			routeCache = cache.NewRouteCache(rc, cfg.CacheTTL)
			readyChecks["redis"] = rc.Ping
		}
	}

	if seed {
		if sqlDB == nil {
			return errors.New("-seed needs a database: set DATABASE_URL or PGDATABASE")
		}
		return seedBundled(ctx, sqlDB, bundledSrc, routeCache, logger)
	}

	repoOpts := []schedule.Option{schedule.WithLoadMetrics(mcol), schedule.WithLogger(logger)}
	if routeCache != nil {
		repoOpts = append(repoOpts, schedule.WithCache(routeCache))
	}
	repo := schedule.NewRepository(sources, repoOpts...)

	mgrOpts := []countdown.Option{
		countdown.WithClock(clk),
		countdown.WithIntervals(cfg.TickInterval, cfg.RefreshInterval),
		countdown.WithMetrics(mcol),
		countdown.WithLogger(logger),
	}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, mcol, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		mgrOpts = append(mgrOpts, countdown.WithSink(pub))
	}
	mgr := countdown.NewManager(repo, mgrOpts...)
	defer mgr.Stop()

	store := prefs.NewFileStore(cfg.PrefsPath)
	sel, stored := store.Load()
	logger.Info("default selection", "route_id", sel.RouteID, "direction", sel.Direction, "stop_index", sel.StopIndex, "stored", stored)
	if err := api.ValidateSelection(ctx, repo, sel); errors.Is(err, api.ErrStopOutOfRange) {
		logger.Warn("stored stop out of range, using first stop", "route_id", sel.RouteID, "stop_index", sel.StopIndex)
		sel.StopIndex = 0
	}
	defaultSession, err := mgr.OpenPublished(ctx, sel, logModeChanges(logger))
	if err != nil {
		return err
	}

	limiter := api.NewRateLimiter(cfg.RateLimitPerMinute, clk, logger)
	defer limiter.Stop()

	router := api.NewRouter(api.Deps{
		Repo:           repo,
		Manager:        mgr,
		Prefs:          store,
		DefaultSession: defaultSession,
		Clock:          clk,
		Metrics:        mcol,
		ServeMetrics:   cfg.MetricsAddr == "",
		RateLimiter:    limiter,
		ReadyChecks:    readyChecks,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr, logger)
	}

	// Block until cancelled or the listener fails
	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	mgr.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", "error", err)
		}
	}
	logger.Info("shutdown complete")
	return runErr
}

// newClock honours FAKE_NOW so demos can start at a chosen instant. Time
// then advances at real speed.
func newClock(cfg *config.Config, logger *slog.Logger) (clock.Clock, error) {
	var c clock.Clock = clock.RealClock{}
	if cfg.FakeNow != "" {
		start, err := clock.ParseTime(cfg.FakeNow, cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid FAKE_NOW: %w", err)
		}
		c = clock.NewOffsetClock(start)
		logger.Info("using fake clock", "start", start.Format(time.RFC3339))
	}
	return clock.InLocation(c, cfg.Location), nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.TimetableDB != "" {
		var err error
		if dsn, err = db.WithDBName(dsn, cfg.TimetableDB); err != nil {
			return nil, fmt.Errorf("compose DSN: %w", err)
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := db.Migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func seedBundled(ctx context.Context, sqlDB *sql.DB, src *bundled.Source, rc *cache.RouteCache, logger *slog.Logger) error {
	ids, err := src.RouteIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		raw, ok, err := src.Fetch(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := db.SaveImport(ctx, sqlDB, raw); err != nil {
			return err
		}
		if rc != nil {
			if err := rc.Invalidate(ctx, id); err != nil {
				logger.Warn("route cache invalidate failed", "route_id", id, "error", err)
			}
		}
		logger.Info("seeded route", "route_id", id)
	}
	return nil
}

// logModeChanges reports the default countdown's mode transitions rather
// than every tick.
func logModeChanges(logger *slog.Logger) func(countdown.Update) {
	var last string
	return func(u countdown.Update) {
		key := string(u.Display.Mode) + "|" + u.Selection.RouteID
		if key == last {
			return
		}
		last = key
		logger.Info("default countdown",
			"route_id", u.Selection.RouteID,
			"direction", u.Selection.Direction,
			"stop_index", u.Selection.StopIndex,
			"mode", u.Display.Mode,
			"label", u.Display.Label)
	}
}
