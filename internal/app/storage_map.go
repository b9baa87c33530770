package app

import (
	"fmt"
	"strings"
	"time"

	"looptask/internal/config"
	"looptask/internal/storage"
)

// mapStorageConfig returns the store config, the history retention (0 keeps
// everything) and whether storage is enabled.
func mapStorageConfig(cfg *config.Config) (storage.Config, time.Duration, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, 0, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, 0, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, 0, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	retention, err := config.ParseDurationField("storage.retention", sc.Retention)
	if err != nil {
		return storage.Config{}, 0, false, err
	}

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, retention, true, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, 0, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, retention, true, nil
	default:
		return storage.Config{}, 0, false, fmt.Errorf("storage.driver: unknown %q (want one of %s)", sc.Driver, strings.Join(storage.Drivers(), ", "))
	}
}
