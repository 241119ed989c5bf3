package webhook

import (
	"strings"
	"time"
)

// Accepted ISO-8601 shapes. Seconds and fractions are optional; the offset
// may be Z, ±HH:MM, ±HHMM or ±HH. Values without an offset are read as UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04Z07",
	"2006-01-02T15:04",
}

// ParseTimestamp normalizes an envelope timestamp into a time.Time.
// time.Time values pass through untouched; strings must be ISO-8601.
func ParseTimestamp(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case string:
		return parseTimestampString(v)
	}
	return time.Time{}, invalidValue("timestamp", "invalid timestamp type: %T", value)
}

func parseTimestampString(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	// a space separator is allowed in place of T
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, invalidValue("timestamp", "invalid timestamp format: %s", raw)
}
