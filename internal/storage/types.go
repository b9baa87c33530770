package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one finished invocation of a task.
// Keep it compact and schema-stable.
type RunRecord struct {
	Task       string    `json:"task"`
	Iteration  uint64    `json:"iteration"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
	Kind       string    `json:"kind,omitempty"`
	Tolerated  bool      `json:"tolerated,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (r RunRecord) OK() bool { return r.Error == "" }
