package config

import (
	"fmt"
	"strings"
	"time"

	"looptask/internal/task/schedule"
)

// ParseDurationField parses an optional non-negative setting such as a
// timeout or a retention. Empty means zero. Besides Go durations it takes the
// day forms task intervals use ("7d", "1d12h"); path prefixes the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("%s: duration must be >= 0, got %q", path, raw)
		}
		return d, nil
	}
	p, err := schedule.ParseInterval(s)
	if err != nil || p.Source != "days" {
		return 0, fmt.Errorf("%s: invalid duration %q (e.g. 90s, 12h, 7d)", path, raw)
	}
	return p.Every, nil
}

// ParseDurationOrDefault is ParseDurationField with def standing in for zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
