package app

import (
	"context"
	"errors"
	"time"

	"looptask/internal/config"
	"looptask/internal/eventbus"
	"looptask/internal/storage"
	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

// pruneHistory is shared by every App; Bind gives each App its own loop and
// hands the App in as the receiver.
var pruneHistory = loop.MustNew(loop.Interval{Hours: 1}, func(ctx context.Context, inv loop.Invocation) error {
	a, ok := inv.Receiver.(*App)
	if !ok {
		return errors.New("prune: receiver is not an app")
	}
	return a.pruneOnce(ctx)
}, loop.WithName("storage.prune"), loop.Tolerate(kindStorage), loop.WithFailureHandler(loop.ResumeHandler(6*time.Hour, 3)))

func (a *App) pruneOnce(ctx context.Context) error {
	if a.store == nil || a.retention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-a.retention)
	n, err := a.store.Prune(ctx, cutoff)
	if err != nil {
		return loop.Fail(kindStorage, err)
	}
	if n > 0 {
		a.log.Info("history pruned", logx.Int("removed", n), logx.Time("before", cutoff))
	}
	return nil
}

const kindStorage loop.FailureKind = "storage"

// recordRun is the eventbus handler that appends one history row per invocation.
func (a *App) recordRun(ctx context.Context, e eventbus.Event) {
	ev, ok := e.Data.(loop.Event)
	if !ok || a.store == nil {
		return
	}
	err := a.store.AppendRun(ctx, storage.RunRecord{
		Task:       ev.Task,
		Iteration:  ev.Iteration,
		Started:    ev.Started,
		DurationMS: ev.Duration.Milliseconds(),
		Kind:       ev.Kind,
		Tolerated:  ev.Tolerated,
		Error:      ev.Error,
	})
	if err != nil {
		a.log.Warn("history append failed", logx.String("task", ev.Task), logx.Err(err))
	}
}

// History returns the newest runs of a task (all tasks when name is empty).
func (a *App) History(ctx context.Context, name string, n int) ([]storage.RunRecord, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.RecentRuns(ctx, name, n)
}

// ReadHistory opens the store configured in cfgPath read-side, without
// starting anything, and returns the newest runs.
func ReadHistory(ctx context.Context, cfgPath, name string, n int) ([]storage.RunRecord, error) {
	cfg, err := config.NewManager(cfgPath).Load(ctx)
	if err != nil {
		return nil, err
	}
	sc, _, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.RecentRuns(ctx, name, n)
}
