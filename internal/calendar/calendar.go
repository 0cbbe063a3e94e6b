// Package calendar centralizes calendar-day normalization and weekly boundary
// computation for dailyscore. All streak and settlement logic goes through it.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DayLayout is the wire format for calendar days.
	DayLayout = "2006-01-02"

	// BoundaryWeekday and BoundaryHour define the weekly settlement instant.
	BoundaryWeekday = time.Sunday
	BoundaryHour    = 21
)

// Clock is the source of "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// LastInstant is the inclusive end of the window, one millisecond before End.
func (w Window) LastInstant() time.Time {
	return w.End.Add(-time.Millisecond)
}

// Calendar normalizes instants in a single authoritative time zone.
type Calendar struct {
	loc *time.Location
}

// New returns a Calendar for loc. A nil loc means time.Local.
func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{loc: loc}
}

// Load resolves an IANA zone name. Empty or "Local" selects time.Local.
func Load(name string) (*Calendar, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return New(time.Local), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return New(loc), nil
}

// Location returns the calendar's zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Day returns local midnight of the calendar day containing t.
func (c *Calendar) Day(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// SameDay reports whether a and b fall on the same local calendar day.
func (c *Calendar) SameDay(a, b time.Time) bool {
	ya, ma, da := a.In(c.loc).Date()
	yb, mb, db := b.In(c.loc).Date()
	return ya == yb && ma == mb && da == db
}

// DaysBetween returns the number of calendar days from a to b (negative when b is earlier).
// Counted on dates, so DST transitions do not skew the result.
func (c *Calendar) DaysBetween(a, b time.Time) int {
	ya, ma, da := a.In(c.loc).Date()
	yb, mb, db := b.In(c.loc).Date()
	ua := time.Date(ya, ma, da, 0, 0, 0, 0, time.UTC)
	ub := time.Date(yb, mb, db, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// ParseDay parses a YYYY-MM-DD string as local midnight.
func (c *Calendar) ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, strings.TrimSpace(s), c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected %s", s, DayLayout)
	}
	return t, nil
}

// FormatDay renders the local calendar day of t.
func (c *Calendar) FormatDay(t time.Time) string {
	return t.In(c.loc).Format(DayLayout)
}

// DayWindow covers the calendar day containing t.
func (c *Calendar) DayWindow(t time.Time) Window {
	start := c.Day(t)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// WeekWindow covers the Sunday-to-Saturday week containing t.
func (c *Calendar) WeekWindow(t time.Time) Window {
	day := c.Day(t)
	start := day.AddDate(0, 0, -int(day.Weekday()))
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// LastBoundary returns the most recent Sunday 21:00 at or before now.
func (c *Calendar) LastBoundary(now time.Time) time.Time {
	day := c.Day(now)
	back := (int(day.Weekday()) - int(BoundaryWeekday) + 7) % 7
	y, m, d := day.AddDate(0, 0, -back).Date()
	b := time.Date(y, m, d, BoundaryHour, 0, 0, 0, c.loc)
	if b.After(now) {
		b = b.AddDate(0, 0, -7)
	}
	return b
}

// NextBoundary returns the first Sunday 21:00 strictly after now.
func (c *Calendar) NextBoundary(now time.Time) time.Time {
	return c.LastBoundary(now).AddDate(0, 0, 7)
}

// SettlementWindow is the Sunday-to-Saturday week that closes the day before
// boundary. A settlement at boundary judges weekly badges on it; tasks dated
// the boundary Sunday belong to the week that opens then, as in WeekWindow.
func (c *Calendar) SettlementWindow(boundary time.Time) Window {
	end := c.Day(boundary)
	return Window{Start: end.AddDate(0, 0, -7), End: end}
}
