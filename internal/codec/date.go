package codec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDateOutOfRange is returned for instants whose UTC year has no four-digit form.
var ErrDateOutOfRange = errors.New("codec: date out of range")

// Accepted ISO-8601 layouts, most specific first. Layouts without an offset are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses an ISO-8601 date, date-time, or RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO-8601 date")
}

// FormatDate formats the instant t as RFC 3339 in UTC with nanoseconds.
// Offsets are not kept: RFC 3339 drops the seconds of historic zone offsets.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CheckDate reports ErrDateOutOfRange when FormatDate(t) would not parse back.
func CheckDate(t time.Time) error {
	if y := t.UTC().Year(); y < 0 || y > 9999 {
		return fmt.Errorf("%w: year %d", ErrDateOutOfRange, y)
	}
	return nil
}
