package schedule

import (
	"encoding/json"
	"fmt"
)

// normalizeCurrent handles the per-direction stops layout:
//
//	{"directions": {"A": {"stops": [...], "cumulative_min": [...]}, "B": {...}}}
func normalizeCurrent(n *normalizer, doc map[string]json.RawMessage, m *RouteModel) {
	dirs := n.object(doc["directions"], "directions")
	filled := make(map[Direction]string, len(Directions))
	for _, key := range sortedKeys(dirs) {
		d, ok := directionKeys[key]
		if !ok {
			n.warnf("directions has unknown direction %q", key)
			continue
		}
		if first, dup := filled[d]; dup {
			n.warnf("directions.%s repeats direction %s from %q, ignored", key, d, first)
			continue
		}
		filled[d] = key
		block := n.object(dirs[key], fmt.Sprintf("directions.%s", key))
		if block == nil {
			continue
		}
		stops := n.strings(block["stops"], fmt.Sprintf("directions.%s.stops", key))
		what := fmt.Sprintf("directions.%s.cumulative_min", key)
		m.StopsByDirection[d] = stops
		m.CumulativeMinutesByDirection[d] = n.fitCumulative(n.numbers(block["cumulative_min"], what), len(stops), what)
	}
}
