package loop

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Interval is the component form of a task delay.
type Interval struct {
	Days    int `json:"days,omitempty"`
	Hours   int `json:"hours,omitempty"`
	Minutes int `json:"minutes,omitempty"`
	Seconds int `json:"seconds,omitempty"`
}

// Duration returns the interval as a single duration.
func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.Days)*day +
		time.Duration(iv.Hours)*time.Hour +
		time.Duration(iv.Minutes)*time.Minute +
		time.Duration(iv.Seconds)*time.Second
}

func (iv Interval) IsZero() bool { return iv == Interval{} }

func (iv Interval) validate() error {
	if iv.Days < 0 || iv.Hours < 0 || iv.Minutes < 0 || iv.Seconds < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeInterval, iv)
	}
	if iv.IsZero() {
		return ErrZeroDuration
	}
	var total time.Duration
	for _, c := range iv.parts() {
		if time.Duration(c.n) > math.MaxInt64/c.unit {
			return fmt.Errorf("%w: %s", ErrIntervalOverflow, iv)
		}
		part := time.Duration(c.n) * c.unit
		if total > math.MaxInt64-part {
			return fmt.Errorf("%w: %s", ErrIntervalOverflow, iv)
		}
		total += part
	}
	return nil
}

type intervalPart struct {
	n    int
	unit time.Duration
}

func (iv Interval) parts() []intervalPart {
	return []intervalPart{{iv.Days, day}, {iv.Hours, time.Hour}, {iv.Minutes, time.Minute}, {iv.Seconds, time.Second}}
}

// IntervalOf normalizes d into components. Sub-second precision is dropped.
func IntervalOf(d time.Duration) Interval {
	if d <= 0 {
		return Interval{}
	}
	var iv Interval
	iv.Days = int(d / day)
	d -= time.Duration(iv.Days) * day
	iv.Hours = int(d / time.Hour)
	d -= time.Duration(iv.Hours) * time.Hour
	iv.Minutes = int(d / time.Minute)
	d -= time.Duration(iv.Minutes) * time.Minute
	iv.Seconds = int(d / time.Second)
	return iv
}

// String renders non-zero components, e.g. "1d2h30s".
func (iv Interval) String() string {
	if iv.IsZero() {
		return "0s"
	}
	var b strings.Builder
	for _, c := range []struct {
		v    int
		unit string
	}{{iv.Days, "d"}, {iv.Hours, "h"}, {iv.Minutes, "m"}, {iv.Seconds, "s"}} {
		if c.v != 0 {
			fmt.Fprintf(&b, "%d%s", c.v, c.unit)
		}
	}
	return b.String()
}
