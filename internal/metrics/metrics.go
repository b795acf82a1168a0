package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Calculations *prometheus.CounterVec // mode label: countdown|tomorrow|no_service
	RouteLoads   *prometheus.CounterVec // result label: hit|miss|absent|error

	ActiveSessions prometheus.Gauge
	SessionsOpened prometheus.Counter
	Recomputes     prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	HTTPRequests *prometheus.CounterVec // method, path, status

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram
	HTTPDuration    *prometheus.HistogramVec

	TickInterval    prometheus.Gauge // seconds
	RefreshInterval prometheus.Gauge // seconds
}

func NewCollector(tickInterval, refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextbus_calculations_total",
			Help: "Arrival calculations by outcome.",
		}, []string{"mode"}),
		RouteLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextbus_route_loads_total",
			Help: "Route loads by result.",
		}, []string{"result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nextbus_active_sessions",
			Help: "Number of open countdown sessions.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nextbus_sessions_opened_total",
			Help: "Total countdown sessions opened.",
		}),
		Recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nextbus_recomputes_total",
			Help: "Total full recomputations (route load + calculation).",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nextbus_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nextbus_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nextbus_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextbus_http_requests_total",
			Help: "Total HTTP requests.",
		}, []string{"method", "path", "status"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nextbus_tick_duration_seconds",
			Help:    "Duration of countdown tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nextbus_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nextbus_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nextbus_tick_interval_seconds",
			Help: "Countdown tick interval in seconds.",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nextbus_refresh_interval_seconds",
			Help: "Recompute interval outside countdown mode in seconds.",
		}),
	}

	reg.MustRegister(
		c.Calculations, c.RouteLoads,
		c.ActiveSessions, c.SessionsOpened, c.Recomputes,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.HTTPRequests, c.TickDuration, c.PublishDuration, c.HTTPDuration,
		c.TickInterval, c.RefreshInterval,
	)

	c.TickInterval.Set(tickInterval.Seconds())
	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

// RouteLoad counts a repository load outcome.
func (c *Collector) RouteLoad(result string) {
	c.RouteLoads.WithLabelValues(result).Inc()
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}

// Publisher hooks.

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
