// Package schedule turns the human-written interval strings found in config
// files into task delays.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Parsed is a normalized interval string.
type Parsed struct {
	Every  time.Duration
	Source string // "every" | "duration" | "days" | "hhmm"
}

var (
	reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	reDays = regexp.MustCompile(`^(\d+)d(.*)$`)
)

// ParseInterval accepts:
//   - "@every 55m" (robfig/cron descriptor)
//   - Go durations: "55m", "2h30m", "500ms"
//   - day prefixes: "2d", "1d12h"
//   - HH:MM: "00:50" is 50 minutes, "02:30" is 2h30m
//
// An optional "every:" or "interval:" prefix is ignored. Calendar cron
// expressions ("*/5 * * * *", "@hourly") are rejected: tasks run on a fixed
// delay measured from the end of the previous invocation.
func ParseInterval(raw string) (Parsed, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Parsed{}, fmt.Errorf("interval required")
	}
	low := strings.ToLower(s)
	for _, p := range []string{"every:", "interval:"} {
		if strings.HasPrefix(low, p) {
			s = strings.TrimSpace(s[len(p):])
			low = strings.ToLower(s)
			break
		}
	}

	if strings.HasPrefix(low, "@every") {
		sched, err := cron.ParseStandard(s)
		if err != nil {
			return Parsed{}, fmt.Errorf("invalid interval %q: %w", raw, err)
		}
		cd, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return Parsed{}, fmt.Errorf("invalid interval %q", raw)
		}
		return Parsed{Every: cd.Delay, Source: "every"}, nil
	}
	if strings.HasPrefix(low, "@") || strings.ContainsAny(s, " \t\n\r") {
		return Parsed{}, fmt.Errorf("calendar schedule %q not supported (use '@every 5m', '5m', '1d' or '02:30')", raw)
	}

	if reHHMM.MatchString(s) {
		d, err := parseHHMM(s)
		if err != nil {
			return Parsed{}, err
		}
		return Parsed{Every: d, Source: "hhmm"}, nil
	}

	if m := reDays.FindStringSubmatch(low); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil || days > 106751 {
			return Parsed{}, fmt.Errorf("invalid day count in %q", raw)
		}
		d := time.Duration(days) * 24 * time.Hour
		if rest := m[2]; rest != "" {
			extra, err := time.ParseDuration(rest)
			if err != nil || extra < 0 {
				return Parsed{}, fmt.Errorf("invalid interval %q", raw)
			}
			d += extra
		}
		if d <= 0 {
			return Parsed{}, fmt.Errorf("interval must be > 0")
		}
		return Parsed{Every: d, Source: "days"}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return Parsed{}, fmt.Errorf("invalid interval %q (use '@every 5m', '5m', '1d' or '02:30')", raw)
	}
	if d <= 0 {
		return Parsed{}, fmt.Errorf("interval must be > 0")
	}
	return Parsed{Every: d, Source: "duration"}, nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
