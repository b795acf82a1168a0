// Package arrival computes the next time a vehicle reaches a selected stop.
package arrival

import (
	"time"

	"nextbus/internal/daytype"
	"nextbus/internal/schedule"
)

// Mode is the outcome of an arrival computation.
type Mode string

const (
	ModeCountdown Mode = "countdown"
	ModeTomorrow  Mode = "tomorrow"
	ModeNoService Mode = "no_service"
)

// Query selects a stop on a route at a moment. Now's location defines the
// service day.
type Query struct {
	RouteID   string
	Direction schedule.Direction
	StopIndex int
	Now       time.Time
}

// Result carries ArrivalAt and DayType only when Mode is not ModeNoService.
type Result struct {
	Mode      Mode             `json:"mode"`
	ArrivalAt time.Time        `json:"arrivalAt,omitzero"`
	DayType   daytype.Category `json:"dayTypeUsed,omitempty"`
}

// HasArrival reports whether the result names an arrival instant.
func (r Result) HasArrival() bool {
	return r.Mode != ModeNoService && !r.ArrivalAt.IsZero()
}

var noService = Result{Mode: ModeNoService}

// Calculator computes arrivals against a RouteModel. The zero value uses
// daytype.Weekly.
type Calculator struct {
	Classifier daytype.Classifier
}

// CalculateNextArrival is Calculator{}.Calculate.
func CalculateNextArrival(q Query, m *schedule.RouteModel) Result {
	return Calculator{}.Calculate(q, m)
}

// Calculate returns the earliest arrival at or after q.Now today; failing
// that, the first arrival of the next calendar day; failing that, no service.
// It never modifies m.
func (c Calculator) Calculate(q Query, m *schedule.RouteModel) Result {
	if !m.HasData() {
		return noService
	}
	classifier := c.Classifier
	if classifier == nil {
		classifier = daytype.Weekly{}
	}
	travel := minutes(schedule.CumulativeMinutesTo(m, q.Direction, q.StopIndex))

	today := classifier.Classify(q.Now)
	var best time.Time
	for _, dep := range m.DeparturesFor(today, q.Direction) {
		// Travel time may push the arrival past midnight; plain addition
		// handles that.
		arr := dep.On(q.Now).Add(travel)
		if arr.Before(q.Now) {
			continue
		}
		if best.IsZero() || arr.Before(best) {
			best = arr
		}
	}
	if !best.IsZero() {
		return Result{Mode: ModeCountdown, ArrivalAt: best, DayType: today}
	}

	y, mo, d := q.Now.Date()
	tomorrow := time.Date(y, mo, d+1, 0, 0, 0, 0, q.Now.Location())
	next := classifier.Classify(tomorrow)
	deps := m.DeparturesFor(next, q.Direction)
	if len(deps) == 0 {
		return noService
	}
	// Lists are sorted by the normalizer and travel time is fixed per stop,
	// so the first departure gives the first arrival.
	return Result{Mode: ModeTomorrow, ArrivalAt: deps[0].On(tomorrow).Add(travel), DayType: next}
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
