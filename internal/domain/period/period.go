// Package period computes the calendar windows used for quota accounting and reports.
// Every window is half-open: Start is included, End is excluded.
package period

import (
	"fmt"
	"time"
)

// Kind identifies a window size
type Kind string

const (
	Day   Kind = "day"
	Week  Kind = "week"
	Month Kind = "month"
)

// Window is a half-open time range [Start, End)
type Window struct {
	Kind  Kind      `json:"kind"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Last returns the last instant still inside the window
func (w Window) Last() time.Time {
	return w.End.Add(-time.Nanosecond)
}

// String renders the window for logs
func (w Window) String() string {
	return fmt.Sprintf("%s[%s,%s)", w.Kind, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// DayOf returns the calendar day containing t, in t's location
func DayOf(t time.Time) Window {
	start := midnight(t)
	return Window{Kind: Day, Start: start, End: start.AddDate(0, 0, 1)}
}

// WeekOf returns the ISO week containing t. Weeks start on Monday.
func WeekOf(t time.Time) Window {
	start := midnight(t)
	offset := (int(start.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	start = start.AddDate(0, 0, -offset)
	return Window{Kind: Week, Start: start, End: start.AddDate(0, 0, 7)}
}

// MonthOf returns the calendar month containing t. This is the quota window:
// the last day of a month and the first day of the next are in different windows.
func MonthOf(t time.Time) Window {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Window{Kind: Month, Start: start, End: start.AddDate(0, 1, 0)}
}

// Of returns the window of the given kind containing t
func Of(kind Kind, t time.Time) (Window, error) {
	switch kind {
	case Day:
		return DayOf(t), nil
	case Week:
		return WeekOf(t), nil
	case Month:
		return MonthOf(t), nil
	}
	return Window{}, fmt.Errorf("unknown period kind: %q", kind)
}

// ParseKind parses a period kind, defaulting to Month for an empty string
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return Month, nil
	case Day, Week, Month:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown period kind: %q", s)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
