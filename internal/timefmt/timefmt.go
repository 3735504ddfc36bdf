// Package timefmt produces identifiers and human-readable timestamps for
// conversations and messages.
package timefmt

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ISOLayout is the wire format for message timestamps.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// NewID returns a unique, time-ordered identifier (UUIDv7).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ISO formats t as a UTC ISO-8601 string with millisecond precision.
func ISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// ParseISO parses a timestamp produced by ISO. RFC3339 strings without
// fractional seconds are accepted too.
func ParseISO(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timefmt: parse %q: %w", s, err)
	}
	return t, nil
}

// Millis returns t as epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// Clock renders the wall-clock time of t, e.g. "3:04 PM".
func Clock(t time.Time) string {
	return t.Local().Format("3:04 PM")
}

// Relative renders t relative to now for history views:
// "Just now", "5m ago", "3h ago", "2d ago", then a calendar date.
func Relative(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 2")
	}
	return t.Format("Jan 2, 2006")
}
