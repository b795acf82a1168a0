package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MockClock is safe for concurrent use.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// OffsetClock runs at real speed from a chosen starting instant.
type OffsetClock struct {
	offset time.Duration
	loc    *time.Location
}

func NewOffsetClock(start time.Time) *OffsetClock {
	return &OffsetClock{offset: time.Until(start), loc: start.Location()}
}

func (o *OffsetClock) Now() time.Time {
	return time.Now().Add(o.offset).In(o.loc)
}

// InLocation wraps c so every reading is converted to loc. The service day
// is the calendar day in loc.
func InLocation(c Clock, loc *time.Location) Clock {
	if loc == nil {
		return c
	}
	return locClock{c: c, loc: loc}
}

type locClock struct {
	c   Clock
	loc *time.Location
}

func (l locClock) Now() time.Time { return l.c.Now().In(l.loc) }

// ParseTime accepts RFC3339 or a local "YYYY-MM-DD HH:MM[:SS]" in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04",
	} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time %q: expected RFC3339 or YYYY-MM-DD HH:MM[:SS]", s)
}
