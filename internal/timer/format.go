package timer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders a duration for status lines and notes, e.g.
// "1 h 5 min" or, with seconds, "5 min 3 s".
func FormatDuration(d time.Duration, seconds bool) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	parts := make([]string, 0, 3)
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%d h", h))
	}
	parts = append(parts, fmt.Sprintf("%d min", m))
	if seconds {
		parts = append(parts, fmt.Sprintf("%d s", s))
	}
	return strings.Join(parts, " ")
}

// ParseDuration reads a value produced by FormatDuration. Go duration
// strings ("1h5m") are accepted as well.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	fields := strings.Fields(s)
	if len(fields)%2 != 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var d time.Duration
	for i := 0; i < len(fields); i += 2 {
		n, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		switch fields[i+1] {
		case "h":
			d += time.Duration(n) * time.Hour
		case "min":
			d += time.Duration(n) * time.Minute
		case "s":
			d += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid duration unit %q in %q", fields[i+1], s)
		}
	}
	return d, nil
}
