package schedule

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"

	"nextbus/internal/daytype"
)

const defaultTitle = "—"

// Normalize converts raw route documents into a RouteModel. It never fails:
// anything missing or malformed becomes an empty sequence or zero and is
// noted in Warnings.
func Normalize(raw RawRoute) *RouteModel {
	n := &normalizer{}
	m := &RouteModel{
		RouteID:                      raw.RouteID,
		Title:                        defaultTitle,
		StopsByDirection:             make(map[Direction][]string, len(Directions)),
		CumulativeMinutesByDirection: make(map[Direction][]float64, len(Directions)),
		Departures:                   make(map[daytype.Category]map[Direction][]TimeOfDay, len(daytype.Categories)),
	}

	stopsDoc := n.object(raw.Stops, "stops document")
	if _, ok := stopsDoc["directions"]; ok {
		m.Shape = ShapeCurrent
		normalizeCurrent(n, stopsDoc, m)
	} else {
		m.Shape = ShapeLegacy
		normalizeLegacy(n, stopsDoc, m)
	}
	for _, d := range Directions {
		if m.StopsByDirection[d] == nil {
			m.StopsByDirection[d] = []string{}
			m.CumulativeMinutesByDirection[d] = []float64{}
		}
		if total := m.TripMinutes(d); total > m.TotalTripMinutes {
			m.TotalTripMinutes = total
		}
	}

	normalizeSchedule(n, n.object(raw.Schedule, "schedule document"), m)

	m.Warnings = n.warnings
	return m
}

type normalizer struct {
	warnings []string
}

func (n *normalizer) warnf(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Sprintf(format, args...))
}

func (n *normalizer) object(b json.RawMessage, what string) map[string]json.RawMessage {
	if len(b) == 0 || string(b) == "null" {
		n.warnf("%s missing", what)
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		n.warnf("%s is not an object: %v", what, err)
		return nil
	}
	return obj
}

func (n *normalizer) list(b json.RawMessage, what string) []json.RawMessage {
	if len(b) == 0 || string(b) == "null" {
		n.warnf("%s missing", what)
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		n.warnf("%s is not a list", what)
		return nil
	}
	return items
}

// strings keeps the string entries of a JSON list and drops the rest.
func (n *normalizer) strings(b json.RawMessage, what string) []string {
	items := n.list(b, what)
	out := make([]string, 0, len(items))
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			n.warnf("%s[%d] is not a string", what, i)
			continue
		}
		out = append(out, s)
	}
	return out
}

// numbers reads a JSON list of numbers; bad entries count as zero.
func (n *normalizer) numbers(b json.RawMessage, what string) []float64 {
	items := n.list(b, what)
	out := make([]float64, 0, len(items))
	for i, item := range items {
		var f float64
		if err := json.Unmarshal(item, &f); err != nil {
			n.warnf("%s[%d] is not a number", what, i)
		}
		out = append(out, f)
	}
	return out
}

// fitCumulative returns exactly count values, non-negative and
// non-decreasing. Short input is padded with its last value.
func (n *normalizer) fitCumulative(values []float64, count int, what string) []float64 {
	if len(values) != count {
		n.warnf("%s has %d values for %d stops", what, len(values), count)
	}
	out := make([]float64, count)
	prev := 0.0
	for i := range out {
		v := prev
		if i < len(values) {
			v = values[i]
		}
		if v < 0 {
			v = 0
		}
		if v < prev {
			n.warnf("%s decreases at index %d", what, i)
			v = prev
		}
		out[i] = v
		prev = v
	}
	return out
}

// directionKeys maps the keys found in raw departures and direction blocks.
// The named keys come from the first route's files. Keys are read in sorted
// order and the first key for a direction wins, so "A" beats "a".
var directionKeys = map[string]Direction{
	"A":                  DirectionA,
	"a":                  DirectionA,
	"from_enakievo":      DirectionA,
	"B":                  DirectionB,
	"b":                  DirectionB,
	"from_karlomarksovo": DirectionB,
}

func normalizeSchedule(n *normalizer, doc map[string]json.RawMessage, m *RouteModel) {
	for _, c := range daytype.Categories {
		m.Departures[c] = map[Direction][]TimeOfDay{
			DirectionA: {},
			DirectionB: {},
		}
	}
	if doc == nil {
		return
	}

	if b, ok := doc["title"]; ok {
		var title string
		if err := json.Unmarshal(b, &title); err == nil && title != "" {
			m.Title = title
		}
	}

	seen := make(map[daytype.Category]bool)
	for i, setRaw := range n.list(doc["service_sets"], "service_sets") {
		set := n.object(setRaw, fmt.Sprintf("service_sets[%d]", i))
		var id string
		_ = json.Unmarshal(set["service_id"], &id)
		cat, ok := daytype.ParseCategory(id)
		if !ok {
			n.warnf("service_sets[%d] has unknown service_id %q", i, id)
			continue
		}
		deps := n.object(set["departures"], fmt.Sprintf("service_sets[%d].departures", i))
		if deps == nil {
			continue
		}
		if seen[cat] {
			n.warnf("service set %s defined twice, last one wins", cat)
		}
		seen[cat] = true

		byDir := map[Direction][]TimeOfDay{DirectionA: {}, DirectionB: {}}
		filled := make(map[Direction]string, len(Directions))
		for _, key := range sortedKeys(deps) {
			d, ok := directionKeys[key]
			if !ok {
				n.warnf("service set %s has unknown direction %q", cat, key)
				continue
			}
			if first, dup := filled[d]; dup {
				n.warnf("service set %s: %q repeats direction %s from %q, ignored", cat, key, d, first)
				continue
			}
			filled[d] = key
			listRaw := deps[key]
			what := fmt.Sprintf("%s.%s", cat, key)
			for _, s := range n.strings(listRaw, what) {
				t, ok := ParseTimeOfDay(s)
				if !ok {
					n.warnf("%s has malformed time %q", what, s)
				}
				byDir[d] = append(byDir[d], t)
			}
		}
		for d := range byDir {
			sort.SliceStable(byDir[d], func(i, j int) bool { return byDir[d][i] < byDir[d][j] })
		}
		m.Departures[cat] = byDir
	}
}

func sortedKeys(m map[string]json.RawMessage) []string {
	return slices.Sorted(maps.Keys(m))
}
