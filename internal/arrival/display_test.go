package arrival

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nextbus/internal/daytype"
)

func TestFormat_Countdown(t *testing.T) {
	now := at(monday, 8, 0)
	r := Result{Mode: ModeCountdown, ArrivalAt: at(monday, 8, 12).Add(5 * time.Second), DayType: daytype.WeekdaySaturday}

	d := Format(r, now, 0)

	assert.Equal(t, DisplayCountdown, d.Mode)
	assert.Equal(t, "12:05", d.Label)
	require.NotNil(t, d.SecondsLeft)
	assert.Equal(t, 725, *d.SecondsLeft)
	require.NotNil(t, d.Progress)
	assert.Equal(t, 0.0, *d.Progress)
	assert.Equal(t, daytype.WeekdaySaturday, d.DayType)
	assert.False(t, d.Expired())

	half := Format(r, now.Add(362*time.Second+500*time.Millisecond), 725)
	assert.Equal(t, 362, *half.SecondsLeft)
	assert.InDelta(t, 0.5007, *half.Progress, 0.001)
}

func TestFormat_CountdownExpires(t *testing.T) {
	r := Result{Mode: ModeCountdown, ArrivalAt: at(monday, 8, 0)}

	d := Format(r, at(monday, 8, 0), 600)

	assert.True(t, d.Expired())
	assert.Equal(t, "00:00", d.Label)
	assert.Equal(t, 1.0, *d.Progress)
}

func TestFormat_Tomorrow(t *testing.T) {
	r := Result{Mode: ModeTomorrow, ArrivalAt: time.Date(2024, 6, 18, 5, 45, 0, 0, time.UTC), DayType: daytype.WeekdaySaturday}

	d := Format(r, at(monday, 23, 50), 0)

	assert.Equal(t, DisplayTomorrow, d.Mode)
	assert.Equal(t, "tomorrow 05:45", d.Label)
	assert.Nil(t, d.SecondsLeft)
	assert.Nil(t, d.Progress)
	assert.False(t, d.Expired())
}

func TestFormat_NoService(t *testing.T) {
	d := Format(Result{Mode: ModeNoService}, at(monday, 8, 0), 0)

	assert.Equal(t, DisplayNoService, d.Mode)
	assert.Equal(t, LabelNoService, d.Label)
	assert.True(t, d.ArrivalAt.IsZero())
}

func TestFormatMinSec(t *testing.T) {
	assert.Equal(t, "00:00", FormatMinSec(-5))
	assert.Equal(t, "00:59", FormatMinSec(59))
	assert.Equal(t, "01:00", FormatMinSec(60))
	assert.Equal(t, "75:03", FormatMinSec(75*60+3))
}
