package rules

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTimeValue normalizes the two timestamp encodings that appear in market
// payloads and action history: plain numbers (seconds since midnight, or a
// unix timestamp for cooldown bounds) pass through unchanged, and ISO-8601
// strings reduce to seconds since midnight UTC so they compare against
// intraday window bounds.
func ParseTimeValue(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, nil
		}
		parsed, err := parseISO(t)
		if err != nil {
			return 0, fmt.Errorf("parse time %q: %w", t, err)
		}
		return secondsSinceMidnight(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported time value %T", v)
	}
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp layout")
}

func secondsSinceMidnight(t time.Time) float64 {
	u := t.UTC()
	return float64(u.Hour()*3600+u.Minute()*60+u.Second()) +
		float64(u.Nanosecond())/1e9
}
