package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nextbus/internal/daytype"
)

const legacyStops = `{
	"stops": ["Depot", "Market", "School", "Terminus"],
	"cumulative_min": [0, 5, 12, 20]
}`

const currentStops = `{
	"directions": {
		"A": {"stops": ["Depot", "Market", "School", "Terminus"], "cumulative_min": [0, 5, 12, 20]},
		"B": {"stops": ["Terminus", "School", "Market", "Depot"], "cumulative_min": [0, 8, 15, 20]}
	}
}`

const scheduleDoc = `{
	"title": "Depot - Terminus",
	"service_sets": [
		{"service_id": "mon_sat", "departures": {
			"from_enakievo": ["08:40", "07:50", "08:10"],
			"from_karlomarksovo": ["06:00"]
		}},
		{"service_id": "sun_holiday", "departures": {"A": ["09:00"], "B": []}}
	]
}`

func TestNormalize_Legacy(t *testing.T) {
	m := Normalize(RawRoute{RouteID: "15", Stops: []byte(legacyStops), Schedule: []byte(scheduleDoc)})

	assert.Equal(t, ShapeLegacy, m.Shape)
	assert.Equal(t, "15", m.RouteID)
	assert.Equal(t, "Depot - Terminus", m.Title)
	assert.Empty(t, m.Warnings)

	assert.Equal(t, []string{"Depot", "Market", "School", "Terminus"}, m.Stops(DirectionA))
	assert.Equal(t, []string{"Terminus", "School", "Market", "Depot"}, m.Stops(DirectionB))
	assert.Equal(t, []float64{0, 5, 12, 20}, m.CumulativeMinutesByDirection[DirectionA])
	assert.Equal(t, []float64{0, 8, 15, 20}, m.CumulativeMinutesByDirection[DirectionB])
	assert.Equal(t, 20.0, m.TotalTripMinutes)
}

func TestNormalize_LegacyMirroring(t *testing.T) {
	m := Normalize(RawRoute{Stops: []byte(legacyStops), Schedule: []byte(scheduleDoc)})

	// max(0, 20 - cumA[3]) and max(0, 20 - cumA[0])
	assert.Equal(t, 0.0, CumulativeMinutesTo(m, DirectionB, 0))
	assert.Equal(t, 20.0, CumulativeMinutesTo(m, DirectionB, 3))
}

func TestNormalize_CurrentMatchesLegacy(t *testing.T) {
	legacy := Normalize(RawRoute{Stops: []byte(legacyStops), Schedule: []byte(scheduleDoc)})
	current := Normalize(RawRoute{Stops: []byte(currentStops), Schedule: []byte(scheduleDoc)})

	assert.Equal(t, ShapeCurrent, current.Shape)
	assert.Empty(t, current.Warnings)
	assert.Equal(t, legacy.StopsByDirection, current.StopsByDirection)
	assert.Equal(t, legacy.CumulativeMinutesByDirection, current.CumulativeMinutesByDirection)
	assert.Equal(t, legacy.Departures, current.Departures)
	assert.Equal(t, legacy.TotalTripMinutes, current.TotalTripMinutes)
}

func TestNormalize_CurrentDirectionsAreIndependent(t *testing.T) {
	stops := `{"directions": {
		"A": {"stops": ["x", "y"], "cumulative_min": [0, 30]},
		"B": {"stops": ["y", "z", "x"], "cumulative_min": [0, 10, 45]}
	}}`
	m := Normalize(RawRoute{Stops: []byte(stops), Schedule: []byte(scheduleDoc)})

	assert.Equal(t, 30.0, m.TripMinutes(DirectionA))
	assert.Equal(t, 45.0, m.TripMinutes(DirectionB))
	assert.Equal(t, 45.0, m.TotalTripMinutes)
	assert.Equal(t, 10.0, CumulativeMinutesTo(m, DirectionB, 1))
}

func TestNormalize_SortsDeparturesAndKeepsDuplicates(t *testing.T) {
	sched := `{"service_sets": [{"service_id": "mon_sat", "departures": {"A": ["9:05", "07:00", "07:00", "23:59"]}}]}`
	m := Normalize(RawRoute{Stops: []byte(legacyStops), Schedule: []byte(sched)})

	got := m.DeparturesFor(daytype.WeekdaySaturday, DirectionA)
	require.Len(t, got, 4)
	assert.Equal(t, "07:00", got[0].String())
	assert.Equal(t, "07:00", got[1].String())
	assert.Equal(t, "09:05", got[2].String())
	assert.Equal(t, "23:59", got[3].String())

	assert.Empty(t, m.DeparturesFor(daytype.SundayHoliday, DirectionA))
	assert.NotNil(t, m.DeparturesFor(daytype.SundayHoliday, DirectionB))
	assert.Equal(t, defaultTitle, m.Title)
}

func TestNormalize_MalformedInputDegradesWithWarnings(t *testing.T) {
	tests := []struct {
		name     string
		stops    string
		schedule string
	}{
		{"empty documents", "", ""},
		{"not json", "{oops", "[1,2"},
		{"wrong types", `{"stops": "Depot", "cumulative_min": {}}`, `{"service_sets": {"a": 1}}`},
		{"bad directions", `{"directions": ["A"]}`, `{"service_sets": [{"service_id": 7}]}`},
		{"null documents", "null", "null"},
		{"null directions", `{"directions": null}`, `{"service_sets": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Normalize(RawRoute{Stops: []byte(tt.stops), Schedule: []byte(tt.schedule)})

			require.NotNil(t, m)
			assert.NotEmpty(t, m.Warnings)
			assert.False(t, m.HasData())
			for _, d := range Directions {
				assert.Empty(t, m.Stops(d))
				assert.Empty(t, m.CumulativeMinutesByDirection[d])
				for _, c := range daytype.Categories {
					assert.Empty(t, m.DeparturesFor(c, d))
				}
			}
			assert.Equal(t, 0.0, m.TotalTripMinutes)
		})
	}
}

func TestNormalize_NullDirectionsIsCurrentShapeWithWarning(t *testing.T) {
	m := Normalize(RawRoute{Stops: []byte(`{"directions": null}`), Schedule: []byte(scheduleDoc)})

	assert.Equal(t, ShapeCurrent, m.Shape)
	assert.Contains(t, m.Warnings, "directions missing")
}

func TestNormalize_RepeatedDirectionKeysAreDeterministic(t *testing.T) {
	stops := `{"directions": {
		"a": {"stops": ["q"], "cumulative_min": [0]},
		"A": {"stops": ["x", "y"], "cumulative_min": [0, 10]},
		"B": {"stops": ["y", "x"], "cumulative_min": [0, 10]}
	}}`
	sched := `{"service_sets": [{"service_id": "mon_sat", "departures": {
		"a": ["10:00"],
		"A": ["08:00"],
		"from_karlomarksovo": ["09:00"],
		"B": ["07:00"]
	}}]}`
	raw := RawRoute{Stops: []byte(stops), Schedule: []byte(sched)}

	first := Normalize(raw)
	assert.Equal(t, []string{"x", "y"}, first.Stops(DirectionA))
	require.Len(t, first.DeparturesFor(daytype.WeekdaySaturday, DirectionA), 1)
	assert.Equal(t, "08:00", first.DeparturesFor(daytype.WeekdaySaturday, DirectionA)[0].String())
	assert.Equal(t, "07:00", first.DeparturesFor(daytype.WeekdaySaturday, DirectionB)[0].String())
	assert.Len(t, first.Warnings, 3)

	for range 200 {
		assert.Equal(t, first, Normalize(raw))
	}
}

func TestNormalize_RepairsCumulativeSequence(t *testing.T) {
	stops := `{"stops": ["a", "b", "c", "d", "e"], "cumulative_min": [-3, 10, 7, "x"]}`
	m := Normalize(RawRoute{Stops: []byte(stops), Schedule: []byte(scheduleDoc)})

	assert.Equal(t, []float64{0, 10, 10, 10, 10}, m.CumulativeMinutesByDirection[DirectionA])
	assert.Len(t, m.CumulativeMinutesByDirection[DirectionB], 5)
	assert.NotEmpty(t, m.Warnings)
}

func TestNormalize_UnknownServiceSetsSkipped(t *testing.T) {
	sched := `{"service_sets": [
		{"service_id": "school_days", "departures": {"A": ["07:00"]}},
		{"service_id": "mon_sat"},
		{"service_id": "sun_holiday", "departures": {"north": ["07:00"], "B": ["10:00"]}}
	]}`
	m := Normalize(RawRoute{Stops: []byte(legacyStops), Schedule: []byte(sched)})

	assert.Empty(t, m.DeparturesFor(daytype.WeekdaySaturday, DirectionA))
	assert.Empty(t, m.DeparturesFor(daytype.SundayHoliday, DirectionA))
	assert.Len(t, m.DeparturesFor(daytype.SundayHoliday, DirectionB), 1)
	assert.Len(t, m.Warnings, 3)
}

func TestCumulativeMinutesTo(t *testing.T) {
	m := Normalize(RawRoute{Stops: []byte(legacyStops), Schedule: []byte(scheduleDoc)})

	assert.Equal(t, 12.0, CumulativeMinutesTo(m, DirectionA, 2))
	assert.Equal(t, 0.0, CumulativeMinutesTo(m, DirectionA, -1))
	assert.Equal(t, 0.0, CumulativeMinutesTo(m, DirectionA, 4))
	assert.Equal(t, 0.0, CumulativeMinutesTo(m, Direction("C"), 1))
	assert.Equal(t, 0.0, CumulativeMinutesTo(nil, DirectionA, 1))

	for _, d := range Directions {
		prev := -1.0
		for i := range m.Stops(d) {
			v := CumulativeMinutesTo(m, d, i)
			assert.GreaterOrEqual(t, v, prev, "direction %s index %d", d, i)
			prev = v
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"05:30", "05:30", true},
		{"5:30", "05:30", true},
		{"23:59:30", "23:59", true},
		{"24:10", "24:10", true},
		{"ab:10", "00:10", false},
		{"07", "07:00", false},
		{"07:75", "07:00", false},
		{"", "00:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimeOfDay(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestTimeOfDay_On(t *testing.T) {
	loc := time.FixedZone("local", 2*60*60)
	day := time.Date(2024, 6, 17, 15, 4, 5, 6, loc)

	tod, _ := ParseTimeOfDay("05:30")
	assert.Equal(t, time.Date(2024, 6, 17, 5, 30, 0, 0, loc), tod.On(day))

	late, _ := ParseTimeOfDay("24:15")
	assert.Equal(t, time.Date(2024, 6, 18, 0, 15, 0, 0, loc), late.On(day))
}

func TestParseDirection(t *testing.T) {
	d, ok := ParseDirection("a")
	assert.True(t, ok)
	assert.Equal(t, DirectionA, d)

	d, ok = ParseDirection(" B ")
	assert.True(t, ok)
	assert.Equal(t, DirectionB, d)

	_, ok = ParseDirection("north")
	assert.False(t, ok)
}
