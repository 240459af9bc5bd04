// Package billing provides subscriber and billing window value types and pure functions.
package billing

import (
	"strconv"
	"strings"
	"time"
)

// WindowLength is the fixed length of a metering period.
// Windows are not calendar-month aware.
const WindowLength = 30 * 24 * time.Hour

// Subscriber is the subset of a user record the metering core needs (value type).
// CurrentPeriodEnd is kept as supplied by the billing provider; it may be
// empty, malformed or in the past.
type Subscriber struct {
	ID               string
	PlanID           string
	CurrentPeriodEnd string
	UpdatedAt        time.Time
}

// Window is a metering period [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
	// Fallback is set when the subscriber's period end could not be used
	// and End was derived from the current time instead.
	Fallback bool
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// layouts accepted for CurrentPeriodEnd, tried in order.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParsePeriodEnd parses a period end value. Accepts RFC 3339 timestamps,
// zone-less timestamps and dates (read as UTC), and integer unix seconds.
// This is a PURE function.
func ParsePeriodEnd(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs <= 0 {
			return time.Time{}, false
		}
		return time.Unix(secs, 0).UTC(), true
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.IsZero() {
				return time.Time{}, false
			}
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// WindowFor derives the current metering window for a subscriber.
// The end is the subscriber's current period end; when that is missing or
// unparseable it is now+30d and the window is marked Fallback. The start is
// always end-30d. The window always has positive length.
//
// The window follows the subscription's current period end, so past billing
// periods cannot be reconstructed from it.
// This is a PURE function.
func WindowFor(s Subscriber, now time.Time) Window {
	end, ok := ParsePeriodEnd(s.CurrentPeriodEnd)
	fallback := !ok
	if fallback {
		end = now.UTC().Add(WindowLength)
	}
	return Window{
		Start:    end.Add(-WindowLength),
		End:      end,
		Fallback: fallback,
	}
}

// FormatPeriodEnd renders a period end the way ParsePeriodEnd reads it back.
func FormatPeriodEnd(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
