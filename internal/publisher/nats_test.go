package publisher

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nextbus/internal/arrival"
	"nextbus/internal/countdown"
	"nextbus/internal/schedule"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

type countingMetrics struct {
	published, errs, observed int
}

func (c *countingMetrics) NATSPublishedInc()            { c.published++ }
func (c *countingMetrics) NATSPublishErrInc()           { c.errs++ }
func (c *countingMetrics) PublishObserve(time.Duration) { c.observed++ }
func (c *countingMetrics) NATSSetConnected(bool)        {}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix string
		sel    countdown.Selection
		want   string
	}{
		{"arrivals", countdown.Selection{RouteID: "15", Direction: schedule.DirectionA, StopIndex: 3}, "arrivals.15.A.3"},
		{"arrivals.", countdown.Selection{RouteID: "15", Direction: schedule.DirectionB}, "arrivals.15.B.0"},
		{"", countdown.Selection{RouteID: "15", Direction: schedule.DirectionB, StopIndex: 1}, "15.B.1"},
		{"arrivals", countdown.Selection{RouteID: "night bus.1", Direction: schedule.DirectionA}, "arrivals.night_bus_1.A.0"},
		{"arrivals", countdown.Selection{RouteID: ">", Direction: ""}, "arrivals._._.0"},
	}
	for _, tt := range tests {
		p := newPublisher(&fakeConn{}, tt.prefix, false, nil, discard)
		assert.Equal(t, tt.want, p.Subject(tt.sel))
	}
}

func TestPublishUpdate(t *testing.T) {
	fc := &fakeConn{}
	cm := &countingMetrics{}
	p := newPublisher(fc, "arrivals", true, cm, discard)

	u := countdown.Update{
		SessionID: "s1",
		Selection: countdown.Selection{RouteID: "16", Direction: schedule.DirectionB, StopIndex: 2},
		Display:   arrival.NoData(),
		Timestamp: time.Date(2024, 6, 17, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishUpdate(u))

	require.Equal(t, []string{"arrivals.16.B.2"}, fc.subjects)
	var got countdown.Update
	require.NoError(t, json.Unmarshal(fc.payloads[0], &got))
	assert.Equal(t, u.Selection, got.Selection)
	assert.Equal(t, arrival.DisplayNoData, got.Display.Mode)
	assert.Equal(t, 1, cm.published)
	assert.Equal(t, 1, cm.observed)
}

func TestPublishUpdate_Error(t *testing.T) {
	cm := &countingMetrics{}
	p := newPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "arrivals", false, cm, discard)

	err := p.PublishUpdate(countdown.Update{Selection: countdown.DefaultSelection()})

	assert.ErrorContains(t, err, "arrivals.15.A.0")
	assert.Equal(t, 1, cm.errs)
	assert.Equal(t, 0, cm.published)
}
