package countdown

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nextbus/internal/arrival"
	"nextbus/internal/clock"
	mmetrics "nextbus/internal/metrics"
	"nextbus/internal/schedule"
)

type Selection struct {
	RouteID   string             `json:"routeId"`
	Direction schedule.Direction `json:"direction"`
	StopIndex int                `json:"stopIndex"`
}

const DefaultRouteID = "15"

func DefaultSelection() Selection {
	return Selection{RouteID: DefaultRouteID, Direction: schedule.DirectionA}
}

type Update struct {
	SessionID string          `json:"sessionId"`
	Selection Selection       `json:"selection"`
	Display   arrival.Display `json:"display"`
	Timestamp time.Time       `json:"timestamp"`
}

type RouteLoader interface {
	LoadRoute(ctx context.Context, routeID string) (*schedule.RouteModel, bool, error)
}

type Sink interface {
	PublishUpdate(u Update) error
}

type Manager struct {
	loader          RouteLoader
	calc            arrival.Calculator
	clock           clock.Clock
	tickInterval    time.Duration
	refreshInterval time.Duration
	sink            Sink
	metrics         *mmetrics.Collector
	logger          *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	stopped  bool
	wg       sync.WaitGroup
}

var ErrStopped = errors.New("countdown manager stopped")

type Option func(*Manager)

func WithClock(c clock.Clock) Option { return func(m *Manager) { m.clock = c } }

func WithCalculator(c arrival.Calculator) Option { return func(m *Manager) { m.calc = c } }

func WithSink(s Sink) Option { return func(m *Manager) { m.sink = s } }

func WithMetrics(c *mmetrics.Collector) Option { return func(m *Manager) { m.metrics = c } }

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithIntervals sets the countdown tick and the recompute interval used
// outside countdown mode. Non-positive values keep the defaults.
func WithIntervals(tick, refresh time.Duration) Option {
	return func(m *Manager) {
		if tick > 0 {
			m.tickInterval = tick
		}
		if refresh > 0 {
			m.refreshInterval = refresh
		}
	}
}

func NewManager(loader RouteLoader, opts ...Option) *Manager {
	m := &Manager{
		loader:          loader,
		clock:           clock.RealClock{},
		tickInterval:    time.Second,
		refreshInterval: time.Minute,
		logger:          slog.Default(),
		sessions:        make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "countdown_manager")
	return m
}

// Session is one running countdown. onUpdate is called from the session's
// goroutine and must not block or call back into the session.
type Session struct {
	id        string
	m         *Manager
	ctx       context.Context
	cancel    context.CancelFunc
	onUpdate  func(Update)
	publish   bool
	stopWatch func() bool

	// runMu serializes Select and Close so computations never overlap.
	runMu     sync.Mutex
	closed    bool
	runCancel context.CancelFunc
	runDone   chan struct{}

	mu   sync.Mutex
	sel  Selection
	last Update
}

// Open starts a session for sel. The session closes itself when ctx ends.
func (m *Manager) Open(ctx context.Context, sel Selection, onUpdate func(Update)) (*Session, error) {
	return m.open(ctx, sel, onUpdate, false)
}

// OpenPublished is Open for a session whose updates also go to the sink.
// Other sessions never publish, so a subject gets one stream however many
// clients watch the same stop.
func (m *Manager) OpenPublished(ctx context.Context, sel Selection, onUpdate func(Update)) (*Session, error) {
	return m.open(ctx, sel, onUpdate, true)
}

func (m *Manager) open(ctx context.Context, sel Selection, onUpdate func(Update), publish bool) (*Session, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:       uuid.NewString(),
		m:        m,
		ctx:      sctx,
		cancel:   cancel,
		onUpdate: onUpdate,
		publish:  publish,
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		cancel()
		return nil, ErrStopped
	}
	m.sessions[s.id] = s
	if m.metrics != nil {
		m.metrics.SessionsOpened.Inc()
		m.metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	m.logger.Debug("session opened", "session_id", s.id, "route_id", sel.RouteID)
	s.runMu.Lock()
	if !s.closed {
		s.stopWatch = context.AfterFunc(ctx, s.Close)
	}
	s.runMu.Unlock()
	s.Select(sel)
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

func (s *Session) Last() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Select replaces the running computation with one for sel. It returns
// after the previous computation has exited.
func (s *Session) Select(sel Selection) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.closed {
		return
	}
	s.stopRun()

	s.mu.Lock()
	s.sel = sel
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.runCancel, s.runDone = cancel, done

	s.m.wg.Add(1)
	go func() {
		defer s.m.wg.Done()
		defer close(done)
		s.run(ctx, sel)
	}()
}

func (s *Session) Close() {
	s.runMu.Lock()
	if s.closed {
		s.runMu.Unlock()
		return
	}
	s.closed = true
	if s.stopWatch != nil {
		s.stopWatch()
	}
	s.stopRun()
	s.cancel()
	s.runMu.Unlock()

	m := s.m
	m.mu.Lock()
	delete(m.sessions, s.id)
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()
	m.logger.Debug("session closed", "session_id", s.id)
}

// Caller holds runMu.
func (s *Session) stopRun() {
	if s.runCancel == nil {
		return
	}
	s.runCancel()
	<-s.runDone
	s.runCancel, s.runDone = nil, nil
}

func (s *Session) run(ctx context.Context, sel Selection) {
	s.emit(sel, arrival.Loading())
	for {
		res, d := s.m.compute(ctx, sel)
		if ctx.Err() != nil {
			return
		}
		s.emit(sel, d)

		if d.Mode != arrival.DisplayCountdown {
			if !sleep(ctx, s.m.refreshInterval) {
				return
			}
			continue
		}
		if !s.tick(ctx, sel, res, *d.SecondsLeft) {
			return
		}
	}
}

// tick re-renders res every tick interval until the countdown expires. It
// returns false when ctx ends first.
func (s *Session) tick(ctx context.Context, sel Selection, res arrival.Result, startSeconds int) bool {
	ticker := time.NewTicker(s.m.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			tickStart := time.Now()
			d := arrival.Format(res, s.m.clock.Now(), startSeconds)
			s.emit(sel, d)
			if s.m.metrics != nil {
				s.m.metrics.TickDuration.Observe(time.Since(tickStart).Seconds())
			}
			if d.Expired() {
				return true
			}
		}
	}
}

func (m *Manager) compute(ctx context.Context, sel Selection) (arrival.Result, arrival.Display) {
	if m.metrics != nil {
		m.metrics.Recomputes.Inc()
	}
	model, ok, err := m.loader.LoadRoute(ctx, sel.RouteID)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("route load failed", "route_id", sel.RouteID, "error", err)
		}
		return arrival.Result{}, arrival.NoData()
	}
	if !ok {
		return arrival.Result{}, arrival.NoData()
	}

	now := m.clock.Now()
	res := m.calc.Calculate(arrival.Query{
		RouteID:   sel.RouteID,
		Direction: sel.Direction,
		StopIndex: sel.StopIndex,
		Now:       now,
	}, model)
	if m.metrics != nil {
		m.metrics.Calculations.WithLabelValues(string(res.Mode)).Inc()
	}
	return res, arrival.Format(res, now, 0)
}

func (s *Session) emit(sel Selection, d arrival.Display) {
	u := Update{
		SessionID: s.id,
		Selection: sel,
		Display:   d,
		Timestamp: s.m.clock.Now(),
	}
	s.mu.Lock()
	s.last = u
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(u)
	}
	if s.publish && s.m.sink != nil && d.Mode != arrival.DisplayLoading {
		if err := s.m.sink.PublishUpdate(u); err != nil {
			s.m.logger.Warn("publish update failed", "session_id", s.id, "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) Snapshot(sessionID string) (Update, bool) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return Update{}, false
	}
	return s.Last(), true
}

func (m *Manager) Session(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stop closes every session and waits for their goroutines. Open fails
// once Stop has begun.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.wg.Wait()
}
