package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// sortableRFC3339 keeps a fixed-width fraction so stored timestamps sort lexically.
const sortableRFC3339 = "2006-01-02T15:04:05.000000000Z07:00"

// FormatRFC3339 renders t in UTC with a fixed nanosecond fraction.
func FormatRFC3339(t time.Time) string {
	return t.UTC().Format(sortableRFC3339)
}
