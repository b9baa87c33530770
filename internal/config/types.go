package config

import (
	"strings"

	logx "looptask/pkg/logx"
)

type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Alerts  AlertsConfig   `json:"alerts,omitempty"`
	Systemd SystemdConfig  `json:"systemd,omitempty"`
	Tasks   []TaskConfig   `json:"tasks"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	// JSON writes JSON lines to stdout; preferred under systemd.
	JSON bool        `json:"json,omitempty"`
	File LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Logx converts the logging section for logx.New / Service.Apply.
func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		JSON:    c.JSON,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

// StorageConfig controls run-history persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/looptask.db", "retention": "168h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// Retention drops history older than this (swept hourly). Empty or "0s"
	// keeps everything.
	Retention string `json:"retention,omitempty"`
}

type AlertsConfig struct {
	Telegram *TelegramAlerts `json:"telegram,omitempty"`
}

// TelegramAlerts sends task failures to a chat. The token is never logged.
type TelegramAlerts struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	// RatePerMin caps outgoing messages (default 20).
	RatePerMin int `json:"rate_per_min,omitempty"`
	// QueueSize bounds pending alerts; overflow is dropped (default 64).
	QueueSize int `json:"queue_size,omitempty"`
	// Tolerated also alerts on tolerated failures, not only on fatal ones.
	Tolerated bool `json:"tolerated,omitempty"`
}

type SystemdConfig struct {
	// Notify sends READY=1 / STOPPING=1 to the service manager.
	Notify bool `json:"notify"`
	// Watchdog pings WATCHDOG=1 at half of WATCHDOG_USEC when the unit sets it.
	Watchdog bool `json:"watchdog"`
}

// TaskConfig declares one periodic task.
//
// Exactly one of Every and Interval must be set.
type TaskConfig struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled,omitempty"`

	// Every is an interval string: "@every 90s", "1h30m", "2d", "02:30".
	Every    string          `json:"every,omitempty"`
	Interval *IntervalConfig `json:"interval,omitempty"`

	Action string         `json:"action"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`

	// Timeout bounds a single invocation (Go duration; empty means none).
	Timeout string `json:"timeout,omitempty"`

	Tolerate []string `json:"tolerate,omitempty"`
	// OnFailure is "cancel" (default) or "resume".
	OnFailure    string `json:"on_failure,omitempty"`
	ResumeBurst  int    `json:"resume_burst,omitempty"`
	ResumeWindow string `json:"resume_window,omitempty"`
}

type IntervalConfig struct {
	Days    int `json:"days,omitempty"`
	Hours   int `json:"hours,omitempty"`
	Minutes int `json:"minutes,omitempty"`
	Seconds int `json:"seconds,omitempty"`
}

func (t TaskConfig) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

// FailurePolicy returns the normalized on_failure value.
func (t TaskConfig) FailurePolicy() string {
	switch strings.ToLower(strings.TrimSpace(t.OnFailure)) {
	case "resume":
		return "resume"
	default:
		return "cancel"
	}
}
