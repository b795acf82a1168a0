package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	result := RealClock{}.Now()
	after := time.Now()

	assert.False(t, result.Before(before))
	assert.False(t, result.After(after))
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Minute)
	assert.Equal(t, time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC), c.Now())

	c.Advance(-time.Hour)
	assert.Equal(t, time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC), c.Now())

	later := time.Date(2024, 12, 25, 12, 0, 0, 0, time.UTC)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestOffsetClock(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	start := time.Date(2024, 6, 16, 23, 50, 0, 0, loc)
	c := NewOffsetClock(start)

	now := c.Now()
	assert.WithinDuration(t, start, now, time.Second)
	assert.Equal(t, loc, now.Location())
}

func TestInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	mock := NewMockClock(time.Date(2024, 6, 22, 22, 30, 0, 0, time.UTC))

	c := InLocation(mock, loc)
	assert.Equal(t, time.Sunday, c.Now().Weekday())
	assert.Equal(t, 1, c.Now().Hour())

	assert.Same(t, mock, InLocation(mock, nil))
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)

	got, err := ParseTime("2024-06-17T08:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 6, 17, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, loc, got.Location())

	got, err = ParseTime(" 2024-06-17 08:00 ", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 17, 8, 0, 0, 0, loc), got)

	_, err = ParseTime("yesterday", loc)
	assert.Error(t, err)
}
