package dateparse

import (
	"strings"
	"time"
)

// Fallback formats, tried in order after RFC3339. Order matters: slash dates
// are ambiguous (03/04/2025), the US month-first form wins because it is tried
// first. Не менять порядок без подтверждения от конкретного терминала.
var formats = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04",
}

// Parse turns a source-supplied date string into a UTC timestamp.
// ok=false means "no ETA available", never a hard error.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}

	for _, f := range formats {
		if t, err := time.ParseInLocation(f, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
