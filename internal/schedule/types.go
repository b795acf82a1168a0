package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nextbus/internal/daytype"
)

// Direction is one of the two travel directions of a route.
type Direction string

const (
	DirectionA Direction = "A"
	DirectionB Direction = "B"
)

// Directions lists both directions in a stable order.
var Directions = []Direction{DirectionA, DirectionB}

// ParseDirection accepts "A"/"B" in either case.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case DirectionA:
		return DirectionA, true
	case DirectionB:
		return DirectionB, true
	}
	return "", false
}

// Shape records which raw layout a model was normalized from.
type Shape string

const (
	ShapeLegacy  Shape = "legacy"
	ShapeCurrent Shape = "current"
)

// TimeOfDay is a wall-clock departure time in minutes since midnight.
// Values of 24:00 and later are kept and roll into the next day.
type TimeOfDay int

// ParseTimeOfDay parses HH:MM (seconds, if present, are ignored). Components
// that are missing or not numbers count as zero and ok is false.
func ParseTimeOfDay(s string) (t TimeOfDay, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	ok = len(parts) >= 2
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 {
		h, ok = 0, false
	}
	m := 0
	if len(parts) > 1 {
		m, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || m < 0 || m > 59 {
			m, ok = 0, false
		}
	}
	return TimeOfDay(h*60 + m), ok
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On returns the instant of t on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, ok := ParseTimeOfDay(s)
	if !ok {
		return fmt.Errorf("invalid time of day %q", s)
	}
	*t = v
	return nil
}

// RouteModel is the canonical, normalized form of one route. A model is built
// in one piece by Normalize and must not be modified afterwards.
type RouteModel struct {
	RouteID string `json:"routeId"`
	Title   string `json:"title"`
	Shape   Shape  `json:"shape"`

	StopsByDirection             map[Direction][]string  `json:"stopsByDirection"`
	CumulativeMinutesByDirection map[Direction][]float64 `json:"cumulativeMinutesByDirection"`
	TotalTripMinutes             float64                 `json:"totalTripMinutes"`

	Departures map[daytype.Category]map[Direction][]TimeOfDay `json:"departures"`

	// Warnings lists what the normalizer had to repair or drop.
	Warnings []string `json:"warnings,omitempty"`
}

func (m *RouteModel) Stops(d Direction) []string {
	if m == nil {
		return nil
	}
	return m.StopsByDirection[d]
}

// DeparturesFor returns the ascending departure list for a category and
// direction, or nil when there is no service.
func (m *RouteModel) DeparturesFor(c daytype.Category, d Direction) []TimeOfDay {
	if m == nil {
		return nil
	}
	return m.Departures[c][d]
}

// TripMinutes is the cumulative minutes to the last stop of direction d.
func (m *RouteModel) TripMinutes(d Direction) float64 {
	if m == nil {
		return 0
	}
	cum := m.CumulativeMinutesByDirection[d]
	if len(cum) == 0 {
		return 0
	}
	return cum[len(cum)-1]
}

// HasData reports whether the model carries any stops or departures at all.
func (m *RouteModel) HasData() bool {
	if m == nil {
		return false
	}
	for _, stops := range m.StopsByDirection {
		if len(stops) > 0 {
			return true
		}
	}
	for _, byDir := range m.Departures {
		for _, deps := range byDir {
			if len(deps) > 0 {
				return true
			}
		}
	}
	return false
}

// CumulativeMinutesTo returns minutes from the origin of direction d to the
// stop at stopIndex. Unknown directions and out-of-range indexes yield 0.
func CumulativeMinutesTo(m *RouteModel, d Direction, stopIndex int) float64 {
	if m == nil {
		return 0
	}
	cum := m.CumulativeMinutesByDirection[d]
	if stopIndex < 0 || stopIndex >= len(cum) {
		return 0
	}
	return cum[stopIndex]
}

// RawRoute is what a Source hands to the normalizer: the stops document and
// the schedule document, both JSON, in either historical layout.
type RawRoute struct {
	RouteID  string
	Stops    []byte
	Schedule []byte
}
