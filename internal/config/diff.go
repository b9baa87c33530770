package config

import (
	"sort"
	"strings"

	logx "looptask/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.retention", strings.TrimSpace(nS.Retention)),
		)
	}

	var oT, nT TelegramAlerts
	if oldCfg.Alerts.Telegram != nil {
		oT = *oldCfg.Alerts.Telegram
	}
	if newCfg.Alerts.Telegram != nil {
		nT = *newCfg.Alerts.Telegram
	}
	if oT != nT {
		changed = append(changed, "alerts")
		attrs = append(attrs,
			logx.Bool("alerts.telegram.enabled", nT.Enabled),
			logx.Bool("alerts.telegram.token_set", strings.TrimSpace(nT.Token) != ""),
			logx.Int("alerts.telegram.rate_per_min", nT.RatePerMin),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	d := DiffTasks(oldCfg.Tasks, newCfg.Tasks)
	if !d.Empty() {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Int("tasks.added", len(d.Added)),
			logx.Int("tasks.removed", len(d.Removed)),
			logx.Int("tasks.changed", len(d.Changed)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// TaskDiff lists task names by what happened to them between two configs.
type TaskDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

func (d TaskDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffTasks compares task definitions by name and TaskHash. A task that goes
// from enabled to disabled counts as removed, and the reverse as added.
func DiffTasks(oldTasks, newTasks []TaskConfig) TaskDiff {
	index := func(ts []TaskConfig) map[string]uint64 {
		m := make(map[string]uint64, len(ts))
		for _, t := range ts {
			if t.IsEnabled() {
				m[strings.TrimSpace(t.Name)] = TaskHash(t)
			}
		}
		return m
	}
	oldM, newM := index(oldTasks), index(newTasks)

	var d TaskDiff
	for name, h := range newM {
		oh, ok := oldM[name]
		switch {
		case !ok:
			d.Added = append(d.Added, name)
		case oh != h:
			d.Changed = append(d.Changed, name)
		}
	}
	for name := range oldM {
		if _, ok := newM[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}
