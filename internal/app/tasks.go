package app

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"looptask/internal/config"
	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

const stopGrace = 30 * time.Second

type runningTask struct {
	task   *loop.Task
	handle *loop.Handle
}

// buildTask turns one config entry into a loop.Task running on the task supervisor.
func (a *App) buildTask(tc config.TaskConfig) (*loop.Task, error) {
	name := strings.TrimSpace(tc.Name)
	work, err := a.actions.Lookup(tc.Action)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", name, err)
	}
	timeout, err := config.ParseDurationField("tasks["+name+"].timeout", tc.Timeout)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		work = withTimeout(work, timeout)
	}

	kinds := make([]loop.FailureKind, 0, len(tc.Tolerate))
	for _, k := range tc.Tolerate {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, loop.FailureKind(k))
		}
	}
	opts := []loop.Option{
		loop.WithName(name),
		loop.WithLogger(a.log.With(logx.String("comp", "task"))),
		loop.WithEvents(a.bus),
		loop.WithExecutor(a.tasks),
		loop.WithArgs(tc.Args...),
		loop.WithKwargs(tc.Kwargs),
		loop.Tolerate(kinds...),
	}
	if tc.FailurePolicy() == "resume" {
		window, err := config.ParseDurationOrDefault("tasks["+name+"].resume_window", tc.ResumeWindow, 10*time.Minute)
		if err != nil {
			return nil, err
		}
		burst := tc.ResumeBurst
		if burst <= 0 {
			burst = 3
		}
		opts = append(opts, loop.WithFailureHandler(loop.ResumeHandler(window, burst)))
	}

	var t *loop.Task
	if iv := tc.Interval; iv != nil && strings.TrimSpace(tc.Every) == "" {
		t, err = loop.New(loop.Interval{Days: iv.Days, Hours: iv.Hours, Minutes: iv.Minutes, Seconds: iv.Seconds}, work, opts...)
	} else {
		var d time.Duration
		if d, err = tc.Delay(); err == nil {
			t, err = loop.Every(d, work, opts...)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", name, err)
	}

	_ = t.BeforeHook(a.beforeRun)
	_ = t.AfterHook(a.afterRun)
	return t, nil
}

func withTimeout(work loop.WorkFunc, d time.Duration) loop.WorkFunc {
	return func(ctx context.Context, inv loop.Invocation) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return work(ctx, inv)
	}
}

func (a *App) beforeRun(_ context.Context, inv loop.Invocation) error {
	a.log.Info("task started", logx.String("task", inv.Task))
	a.refreshStatus()
	return nil
}

func (a *App) afterRun(_ context.Context, inv loop.Invocation) error {
	a.log.Info("task stopped", logx.String("task", inv.Task))
	return nil
}

// startTask builds and starts tc. An existing run under the same name must
// have been stopped first.
func (a *App) startTask(ctx context.Context, tc config.TaskConfig) error {
	t, err := a.buildTask(tc)
	if err != nil {
		return err
	}
	h, err := t.Start(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.running[t.Name()] = &runningTask{task: t, handle: h}
	a.mu.Unlock()
	return nil
}

// stopTask cancels a task and waits for its after hook.
func (a *App) stopTask(ctx context.Context, name string) {
	a.mu.Lock()
	rt, ok := a.running[name]
	delete(a.running, name)
	a.mu.Unlock()
	if !ok {
		return
	}
	rt.task.Cancel()
	wctx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	if err := rt.handle.Wait(wctx); err != nil && wctx.Err() != nil {
		a.log.Warn("task did not stop in time", logx.String("task", name), logx.Duration("grace", stopGrace))
	}
	a.refreshStatus()
}

// applyTasks reconciles running tasks with cfg: removed and changed tasks are
// stopped, then changed and added ones are started. Unchanged tasks keep running.
func (a *App) applyTasks(ctx context.Context, oldTasks, newTasks []config.TaskConfig) error {
	d := config.DiffTasks(oldTasks, newTasks)
	if d.Empty() {
		return nil
	}
	for _, name := range slices.Concat(d.Removed, d.Changed) {
		a.stopTask(ctx, name)
	}
	byName := make(map[string]config.TaskConfig, len(newTasks))
	for _, tc := range newTasks {
		byName[strings.TrimSpace(tc.Name)] = tc
	}
	var errs []string
	for _, name := range slices.Concat(d.Changed, d.Added) {
		if err := a.startTask(a.sup.Context(), byName[name]); err != nil {
			errs = append(errs, err.Error())
			a.log.Error("task start failed", logx.String("task", name), logx.Err(err))
		}
	}
	a.log.Info("tasks reloaded",
		logx.Any("added", d.Added),
		logx.Any("removed", d.Removed),
		logx.Any("changed", d.Changed),
	)
	if len(errs) > 0 {
		return fmt.Errorf("start tasks: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Tasks returns the names of tasks currently managed, sorted.
func (a *App) Tasks() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.running))
	for name := range a.running {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Task returns the managed task by name.
func (a *App) Task(name string) (*loop.Task, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rt, ok := a.running[name]
	if !ok {
		return nil, false
	}
	return rt.task, true
}

func (a *App) refreshStatus() {
	if a.sd == nil || !a.notify {
		return
	}
	failed := 0
	a.mu.Lock()
	for _, rt := range a.running {
		if rt.handle.Err() != nil {
			failed++
		}
	}
	a.mu.Unlock()
	a.sd.Status("%d task(s) running, %d failed", a.tasks.Counters().Active, failed)
}
