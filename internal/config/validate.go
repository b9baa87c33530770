package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"looptask/internal/task/schedule"
)

// Validate checks structure only. Action names are checked by the app, which
// owns the action registry.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if s := cfg.Storage; s != nil {
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField("storage.retention", s.Retention); err != nil {
			errs = append(errs, err)
		}
	}
	if tg := cfg.Alerts.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			errs = append(errs, errors.New("alerts.telegram.token is required when enabled"))
		}
		if tg.ChatID == 0 {
			errs = append(errs, errors.New("alerts.telegram.chat_id is required when enabled"))
		}
	}

	seen := make(map[string]struct{}, len(cfg.Tasks))
	for i, t := range cfg.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		name := strings.TrimSpace(t.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
		} else {
			path = fmt.Sprintf("tasks[%s]", name)
			if _, dup := seen[name]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate task name", path))
			}
			seen[name] = struct{}{}
		}
		if strings.TrimSpace(t.Action) == "" {
			errs = append(errs, fmt.Errorf("%s.action is required", path))
		}
		if _, err := t.Delay(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
		if _, err := ParseDurationField(path+".timeout", t.Timeout); err != nil {
			errs = append(errs, err)
		}
		switch strings.ToLower(strings.TrimSpace(t.OnFailure)) {
		case "", "cancel", "resume":
		default:
			errs = append(errs, fmt.Errorf("%s.on_failure: want cancel or resume, got %q", path, t.OnFailure))
		}
		if t.ResumeBurst < 0 {
			errs = append(errs, fmt.Errorf("%s.resume_burst must be >= 0", path))
		}
		if _, err := ParseDurationField(path+".resume_window", t.ResumeWindow); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delay resolves the task's delay from either every or interval.
func (t TaskConfig) Delay() (time.Duration, error) {
	every := strings.TrimSpace(t.Every)
	switch {
	case every != "" && t.Interval != nil:
		return 0, errors.New("set either every or interval, not both")
	case every != "":
		p, err := schedule.ParseInterval(every)
		if err != nil {
			return 0, err
		}
		return p.Every, nil
	case t.Interval != nil:
		iv := t.Interval
		if iv.Days < 0 || iv.Hours < 0 || iv.Minutes < 0 || iv.Seconds < 0 {
			return 0, errors.New("interval components must not be negative")
		}
		d := time.Duration(iv.Days)*24*time.Hour + time.Duration(iv.Hours)*time.Hour +
			time.Duration(iv.Minutes)*time.Minute + time.Duration(iv.Seconds)*time.Second
		if d <= 0 {
			return 0, errors.New("interval must be greater than zero")
		}
		return d, nil
	default:
		return 0, errors.New("every or interval is required")
	}
}
