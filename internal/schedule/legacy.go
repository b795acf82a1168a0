package schedule

import "encoding/json"

// normalizeLegacy handles the original single-sequence stops layout:
//
//	{"stops": [...], "cumulative_min": [...]}
//
// Direction B is assumed to be the same road driven backwards, so its stops
// are the reversed list and its minutes are mirrored off direction A. Drop
// this file once every route ships explicit per-direction data.
func normalizeLegacy(n *normalizer, doc map[string]json.RawMessage, m *RouteModel) {
	if doc == nil {
		return
	}
	stops := n.strings(doc["stops"], "stops")
	cum := n.fitCumulative(n.numbers(doc["cumulative_min"], "cumulative_min"), len(stops), "cumulative_min")

	m.StopsByDirection[DirectionA] = stops
	m.CumulativeMinutesByDirection[DirectionA] = cum

	reversed := make([]string, len(stops))
	for i, s := range stops {
		reversed[len(stops)-1-i] = s
	}
	m.StopsByDirection[DirectionB] = reversed
	m.CumulativeMinutesByDirection[DirectionB] = mirrorCumulative(cum)
}

// mirrorCumulative derives direction B minutes from direction A: stop i of B
// is stop (n-1)-i of A, and B's minutes to it are max(0, total - cumA).
func mirrorCumulative(cum []float64) []float64 {
	n := len(cum)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	total := cum[n-1]
	for i := range out {
		out[i] = max(0, total-cum[(n-1)-i])
	}
	return out
}
