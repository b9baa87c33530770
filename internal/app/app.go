package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"looptask/internal/actions"
	"looptask/internal/config"
	"looptask/internal/eventbus"
	"looptask/internal/notify/telegram"
	"looptask/internal/runtime/supervisor"
	"looptask/internal/storage"
	"looptask/internal/systemd"
	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

type App struct {
	// Holds the App's bound side tasks so they go away with the App.
	loop.HostBindings

	cfgm *config.Manager

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	events  *eventbus.Registry
	store   storage.Store
	actions *actions.Registry
	alerts  *telegram.Notifier
	sd      *systemd.Notifier
	notify  bool

	alertSender telegram.Sender

	retention time.Duration

	// sup hosts infrastructure units and cancels on their first error.
	// tasks hosts task loops; a failed task never takes the app down.
	sup   *supervisor.Supervisor
	tasks *supervisor.Supervisor

	mu       sync.Mutex
	running  map[string]*runningTask
	sideRuns []sideRun
}

// sideRun is an internal loop (prune, watchdog) stopped together with the app.
type sideRun struct {
	task   *loop.Task
	handle *loop.Handle
}

type Option func(*App)

// WithActions replaces the built-in action registry.
func WithActions(r *actions.Registry) Option {
	return func(a *App) {
		if r != nil {
			a.actions = r
		}
	}
}

// WithAlertSender sends alerts through s instead of a Telegram bot built from config.
func WithAlertSender(s telegram.Sender) Option {
	return func(a *App) { a.alertSender = s }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.Logx())
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		running: map[string]*runningTask{},
		sd:      systemd.New(log.With(logx.String("comp", "systemd"))),
		notify:  cfg.Systemd.Notify,
	}
	for _, o := range opts {
		o(a)
	}
	if a.actions == nil {
		a.actions = actions.Builtin(log.With(logx.String("comp", "actions")), &http.Client{Timeout: 30 * time.Second})
	}
	a.events = eventbus.NewRegistry(log.With(logx.String("comp", "events")))

	// Unknown actions only surface once the registry is known, so check them
	// on load as well as on every reload.
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(a.validate)
	if err := a.validate(context.Background(), cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	sc, retention, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		a.store = st
		a.retention = retention
		a.events.On(loop.EventIteration, a.recordRun)
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.Duration("retention", retention))
	}

	if tg := cfg.Alerts.Telegram; tg != nil && tg.Enabled {
		tcfg := telegram.Config{
			Token:      tg.Token,
			ChatID:     tg.ChatID,
			RatePerMin: tg.RatePerMin,
			QueueSize:  tg.QueueSize,
			Tolerated:  tg.Tolerated,
		}
		alog := log.With(logx.String("comp", "alerts"))
		if a.alertSender != nil {
			a.alerts = telegram.NewWithSender(a.alertSender, tcfg, alog)
		} else if a.alerts, err = telegram.New(tcfg, alog); err != nil {
			a.closeStore()
			_ = logSvc.Close()
			return nil, fmt.Errorf("alerts.telegram: %w", err)
		}
		a.events.On(loop.EventStopped, a.alerts.Handle)
		a.events.On(loop.EventFailure, a.alerts.Handle)
	}

	// Trace level: short intervals make this very chatty.
	a.events.On(eventbus.Wildcard, func(_ context.Context, e eventbus.Event) {
		if !a.log.Enabled(logx.LevelTrace) {
			return
		}
		a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	})
	return a, nil
}

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	var errs []error
	for _, tc := range cfg.Tasks {
		if _, err := a.actions.Lookup(tc.Action); err != nil {
			errs = append(errs, fmt.Errorf("tasks[%s].action: %w", strings.TrimSpace(tc.Name), err))
		}
	}
	if _, _, _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches event dispatch, alerts, config watching and every enabled task.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.tasks = supervisor.New(a.sup.Context(), supervisor.WithLogger(a.log.With(logx.String("comp", "tasks"))))

	// Subscribe before any task can publish.
	events, unsub := a.bus.Subscribe(256)
	a.sup.Go("events.dispatch", func(c context.Context) error {
		defer unsub()
		return a.events.Serve(c, events)
	})
	if a.alerts != nil {
		a.sup.Go("alerts.telegram", a.alerts.Run)
	}
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(250*time.Millisecond, 5*time.Second))
	a.startReloader()

	cfg := a.cfgm.Get()
	if err := a.applyTasks(ctx, nil, cfg.Tasks); err != nil {
		return err
	}

	if a.store != nil && a.retention > 0 {
		a.startSide(loop.Bind(pruneHistory, a))
	}
	if cfg.Systemd.Watchdog {
		wd, err := a.sd.WatchdogTask(loop.WithLogger(a.log.With(logx.String("comp", "systemd"))))
		if err != nil {
			a.log.Warn("watchdog disabled", logx.Err(err))
		} else if wd != nil {
			a.startSide(wd)
		}
	}
	if a.notify {
		a.sd.Ready()
		a.refreshStatus()
	}
	a.log.Info("started", logx.Int("tasks", len(a.Tasks())), logx.Any("actions", a.actions.Names()))
	return nil
}

func (a *App) startSide(t *loop.Task) {
	h, err := t.Start(a.sup.Context())
	if err != nil {
		a.log.Warn("internal task not started", logx.String("task", t.Name()), logx.Err(err))
		return
	}
	a.mu.Lock()
	a.sideRuns = append(a.sideRuns, sideRun{task: t, handle: h})
	a.mu.Unlock()
}

// startReloader applies published config changes.
func (a *App) startReloader() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change summary", fields...)
	if a.notify {
		a.sd.Reloading()
		defer a.sd.Ready()
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(newCfg.Logging.Logx())
		case "tasks":
			if err := a.applyTasks(ctx, oldCfg.Tasks, newCfg.Tasks); err != nil {
				a.log.Warn("config reload partially applied", logx.Err(err))
			}
		default:
			a.log.Warn("config section changed; restart required to apply", logx.String("section", s))
		}
	}
}

// Stop cancels every task, waits for their after hooks and shuts down.
func (a *App) Stop(ctx context.Context) error {
	if a.notify {
		a.sd.Stopping()
	}
	for _, name := range a.Tasks() {
		a.stopTask(ctx, name)
	}
	a.mu.Lock()
	side := a.sideRuns
	a.sideRuns = nil
	a.mu.Unlock()
	for _, s := range side {
		s.task.Cancel()
		_ = s.handle.Wait(ctx)
	}

	var err error
	if a.sup != nil {
		if a.tasks != nil {
			_ = a.tasks.Stop(ctx)
			for _, u := range a.tasks.Snapshot().Units {
				a.log.Debug("task unit", logx.String("task", u.Name), logx.Uint64("runs", u.Started), logx.Uint64("panics", u.Panics), logx.String("last_err", u.LastErr))
			}
		}
		err = a.sup.Stop(ctx)
	}
	if n := eventbus.Dropped(a.bus); n > 0 {
		a.log.Warn("events dropped by slow subscribers", logx.Uint64("dropped", n))
	}
	a.closeStore()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) closeStore() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.store = nil
	}
}
