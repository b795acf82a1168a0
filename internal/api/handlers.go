package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nextbus/internal/arrival"
	"nextbus/internal/clock"
	"nextbus/internal/countdown"
	"nextbus/internal/daytype"
	"nextbus/internal/logging"
	"nextbus/internal/schedule"
)

const msgNoRouteData = "no data for this route"

var ErrStopOutOfRange = errors.New("stopIndex out of range")

type RouteRepository interface {
	LoadRoute(ctx context.Context, routeID string) (*schedule.RouteModel, bool, error)
	Routes(ctx context.Context) ([]string, error)
}

type PrefsStore interface {
	Load() (countdown.Selection, bool)
	Save(sel countdown.Selection) error
}

type Handler struct {
	repo    RouteRepository
	calc    arrival.Calculator
	clock   clock.Clock
	prefs   PrefsStore
	session *countdown.Session
}

// NewHandler serves the REST endpoints. session is the default countdown
// that follows the stored preferences; it may be nil.
func NewHandler(repo RouteRepository, prefs PrefsStore, session *countdown.Session, c clock.Clock) *Handler {
	return &Handler{repo: repo, prefs: prefs, session: session, clock: c}
}

type RoutesResponse struct {
	Routes []string `json:"routes"`
	Count  int      `json:"count"`
}

func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	ids, err := h.repo.Routes(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("list routes failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list routes")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, RoutesResponse{Routes: ids, Count: len(ids)})
}

type DirectionView struct {
	Stops             []string                                  `json:"stops"`
	CumulativeMinutes []float64                                 `json:"cumulativeMinutes"`
	TripMinutes       float64                                   `json:"tripMinutes"`
	Departures        map[daytype.Category][]schedule.TimeOfDay `json:"departures"`
}

type RouteView struct {
	RouteID          string                               `json:"routeId"`
	Title            string                               `json:"title"`
	Shape            schedule.Shape                       `json:"shape"`
	TotalTripMinutes float64                              `json:"totalTripMinutes"`
	Directions       map[schedule.Direction]DirectionView `json:"directions"`
	Warnings         []string                             `json:"warnings,omitempty"`
}

func newRouteView(m *schedule.RouteModel) RouteView {
	v := RouteView{
		RouteID:          m.RouteID,
		Title:            m.Title,
		Shape:            m.Shape,
		TotalTripMinutes: m.TotalTripMinutes,
		Directions:       make(map[schedule.Direction]DirectionView, len(schedule.Directions)),
		Warnings:         m.Warnings,
	}
	for _, d := range schedule.Directions {
		dv := DirectionView{
			Stops:             nonNil(m.Stops(d)),
			CumulativeMinutes: nonNil(m.CumulativeMinutesByDirection[d]),
			TripMinutes:       m.TripMinutes(d),
			Departures:        make(map[daytype.Category][]schedule.TimeOfDay, len(daytype.Categories)),
		}
		for _, c := range daytype.Categories {
			dv.Departures[c] = nonNil(m.DeparturesFor(c, d))
		}
		v.Directions[d] = dv
	}
	return v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// loadRoute writes the error response itself when ok is false.
func (h *Handler) loadRoute(w http.ResponseWriter, r *http.Request, routeID string) (*schedule.RouteModel, bool) {
	m, ok, err := h.repo.LoadRoute(r.Context(), routeID)
	if err != nil {
		logging.FromContext(r.Context()).Error("load route failed", "route_id", routeID, "error", err)
		respondError(w, http.StatusServiceUnavailable, "route data unavailable")
		return nil, false
	}
	if !ok {
		respondError(w, http.StatusNotFound, msgNoRouteData)
		return nil, false
	}
	return m, true
}

func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadRoute(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newRouteView(m))
}

type ArrivalResponse struct {
	RouteID    string             `json:"routeId"`
	Direction  schedule.Direction `json:"direction"`
	StopIndex  int                `json:"stopIndex"`
	StopName   string             `json:"stopName,omitempty"`
	Result     arrival.Result     `json:"result"`
	Display    arrival.Display    `json:"display"`
	ServerTime time.Time          `json:"serverTime"`
}

func (h *Handler) GetArrival(w http.ResponseWriter, r *http.Request) {
	routeID := r.PathValue("id")
	q := r.URL.Query()

	direction := schedule.DirectionA
	if v := q.Get("direction"); v != "" {
		d, ok := schedule.ParseDirection(v)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid direction parameter: must be A or B")
			return
		}
		direction = d
	}
	stop := 0
	if v := q.Get("stop"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid stop parameter: must be a non-negative integer")
			return
		}
		stop = n
	}

	m, ok := h.loadRoute(w, r, routeID)
	if !ok {
		return
	}
	stops := m.Stops(direction)
	if len(stops) > 0 && stop >= len(stops) {
		respondError(w, http.StatusBadRequest, "invalid stop parameter: out of range")
		return
	}

	now := h.clock.Now()
	res := h.calc.Calculate(arrival.Query{RouteID: routeID, Direction: direction, StopIndex: stop, Now: now}, m)
	resp := ArrivalResponse{
		RouteID:    routeID,
		Direction:  direction,
		StopIndex:  stop,
		Result:     res,
		Display:    arrival.Format(res, now, 0),
		ServerTime: now,
	}
	if stop < len(stops) {
		resp.StopName = stops[stop]
	}
	respondJSON(w, http.StatusOK, resp)
}

type PrefsResponse struct {
	Selection countdown.Selection `json:"selection"`
	Stored    bool                `json:"stored"`
}

func (h *Handler) GetPrefs(w http.ResponseWriter, r *http.Request) {
	sel, ok := h.prefs.Load()
	respondJSON(w, http.StatusOK, PrefsResponse{Selection: sel, Stored: ok})
}

type prefsRequest struct {
	RouteID   string `json:"routeId"`
	Direction string `json:"direction"`
	StopIndex int    `json:"stopIndex"`
}

type badSelectionError string

func (e badSelectionError) Error() string { return string(e) }

func (p prefsRequest) selection() (countdown.Selection, error) {
	routeID := strings.TrimSpace(p.RouteID)
	if routeID == "" {
		return countdown.Selection{}, badSelectionError("routeId is required")
	}
	d, ok := schedule.ParseDirection(p.Direction)
	if !ok {
		return countdown.Selection{}, badSelectionError("direction must be A or B")
	}
	if p.StopIndex < 0 {
		return countdown.Selection{}, badSelectionError("stopIndex must be non-negative")
	}
	return countdown.Selection{RouteID: routeID, Direction: d, StopIndex: p.StopIndex}, nil
}

// ValidateSelection rejects a stop index past the end of a known route's
// stop list. Unknown routes pass; their countdown shows no data.
func ValidateSelection(ctx context.Context, repo RouteRepository, sel countdown.Selection) error {
	m, ok, err := repo.LoadRoute(ctx, sel.RouteID)
	if err != nil {
		return fmt.Errorf("load route %s: %w", sel.RouteID, err)
	}
	if !ok {
		return nil
	}
	if n := len(m.Stops(sel.Direction)); n > 0 && sel.StopIndex >= n {
		return ErrStopOutOfRange
	}
	return nil
}

func (h *Handler) PutPrefs(w http.ResponseWriter, r *http.Request) {
	var req prefsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sel, err := req.selection()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ValidateSelection(r.Context(), h.repo, sel); err != nil {
		if errors.Is(err, ErrStopOutOfRange) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.FromContext(r.Context()).Error("validate prefs failed", "route_id", sel.RouteID, "error", err)
		respondError(w, http.StatusServiceUnavailable, "route data unavailable")
		return
	}
	if err := h.prefs.Save(sel); err != nil {
		logging.FromContext(r.Context()).Error("save prefs failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	if h.session != nil {
		h.session.Select(sel)
	}
	respondJSON(w, http.StatusOK, PrefsResponse{Selection: sel, Stored: true})
}
