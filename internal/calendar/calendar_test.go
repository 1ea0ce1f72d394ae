package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarWeekend(t *testing.T) {
	c := New(nil, time.UTC)

	saturday := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

	assert.True(t, c.IsWeekend(saturday))
	assert.True(t, c.IsClosed(saturday))
	assert.False(t, c.IsWeekend(monday))
	assert.False(t, c.IsClosed(monday))
}

func TestCalendarHolidayWindow(t *testing.T) {
	from := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 12, 26, 23, 59, 59, 0, time.UTC)
	c := New([]Window{{Name: "xmas", From: from, To: to}}, time.UTC)

	assert.True(t, c.IsHoliday(from))
	assert.True(t, c.IsHoliday(from.Add(30*time.Hour)))
	assert.True(t, c.IsHoliday(to))
	assert.False(t, c.IsHoliday(to.Add(time.Second)))
	assert.False(t, c.IsHoliday(from.Add(-time.Second)))
}

func TestCalendarInvertedWindowIgnored(t *testing.T) {
	from := time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	c := New([]Window{{From: from, To: to}}, time.UTC)

	assert.False(t, c.IsHoliday(from))
}
