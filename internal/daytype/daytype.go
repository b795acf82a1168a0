// Package daytype maps calendar dates to service-calendar categories.
package daytype

import "time"

// Category is the service-calendar bucket that decides which departure list
// applies on a date. The string values double as service_id in raw timetables.
type Category string

const (
	WeekdaySaturday Category = "mon_sat"
	SundayHoliday   Category = "sun_holiday"
)

// Categories lists every known category in a stable order.
var Categories = []Category{WeekdaySaturday, SundayHoliday}

// ParseCategory returns the category for a raw service id.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case WeekdaySaturday, SundayHoliday:
		return Category(s), true
	}
	return "", false
}

// Classifier decides the category of a date. Holiday tables plug in here;
// nothing else in the module looks at weekdays.
type Classifier interface {
	Classify(date time.Time) Category
}

// Weekly is the default classifier: Sundays run the Sunday/holiday timetable,
// every other day the weekday/Saturday one.
type Weekly struct{}

func (Weekly) Classify(date time.Time) Category {
	return Classify(date)
}

// Classify uses the weekday of date in its own location.
func Classify(date time.Time) Category {
	if date.Weekday() == time.Sunday {
		return SundayHoliday
	}
	return WeekdaySaturday
}
