package calendar

import "time"

// Window is a closed holiday interval. From/To are inclusive bounds.
type Window struct {
	Name string
	From time.Time
	To   time.Time
}

// Calendar answers whether an instant falls inside a weekend or a
// configured holiday window. Pure lookup, safe for concurrent use.
type Calendar struct {
	windows []Window
	loc     *time.Location
}

// New builds a calendar from holiday windows. Weekend checks use the
// provided location; nil defaults to UTC.
func New(windows []Window, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.To.Before(w.From) {
			continue
		}
		out = append(out, w)
	}
	return &Calendar{windows: out, loc: loc}
}

// Location returns the calendar's time zone, UTC for a nil calendar.
func (c *Calendar) Location() *time.Location {
	if c == nil {
		return time.UTC
	}
	return c.loc
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func (c *Calendar) IsWeekend(t time.Time) bool {
	if c == nil {
		return false
	}
	day := t.In(c.loc).Weekday()
	return day == time.Saturday || day == time.Sunday
}

// IsHoliday reports whether t falls inside any holiday window.
func (c *Calendar) IsHoliday(t time.Time) bool {
	if c == nil {
		return false
	}
	for _, w := range c.windows {
		if !t.Before(w.From) && !t.After(w.To) {
			return true
		}
	}
	return false
}

// IsClosed reports whether the market is closed at t.
func (c *Calendar) IsClosed(t time.Time) bool {
	return c.IsWeekend(t) || c.IsHoliday(t)
}
