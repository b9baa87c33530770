package loop

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"time"

	logx "looptask/pkg/logx"
)

// Handle represents one run of a task.
type Handle struct {
	task string
	done chan struct{}
	err  error
}

func (h *Handle) Task() string { return h.task }

// Done is closed once the run has fully stopped (after hook included).
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the error that ended the run, or nil while it is still running
// or if it stopped cleanly.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the run stops or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.err
	}
}

func (h *Handle) isDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// runConfig is everything a run reads, captured once by Start.
type runConfig struct {
	inv       Invocation
	tolerated []FailureKind
	onFailure FailureHandler
	before    WorkFunc
	after     WorkFunc
	stop      <-chan struct{}
}

// Start launches the loop on the task's executor and returns its handle.
//
// Args are appended to the stored positional arguments and Kwargs overwrite
// stored named arguments by key; the merged values are kept on the task and
// used for every invocation of this run. ctx bounds the run like Cancel does.
//
// Start fails with ErrAlreadyRunning while a previous run has not fully stopped.
func (t *Task) Start(ctx context.Context, opts ...StartOption) (*Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var so startOptions
	for _, o := range opts {
		if o != nil {
			o(&so)
		}
	}

	t.mu.Lock()
	if t.running || (t.handle != nil && !t.handle.isDone()) {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, t.name)
	}
	if len(so.args) > 0 {
		t.args = append(t.args, so.args...)
	}
	if len(so.kwargs) > 0 {
		if t.kwargs == nil {
			t.kwargs = make(map[string]any, len(so.kwargs))
		}
		maps.Copy(t.kwargs, so.kwargs)
	}
	stop := make(chan struct{})
	t.running = true
	t.stop = stop
	h := &Handle{task: t.name, done: make(chan struct{})}
	t.handle = h
	rs := runConfig{
		inv:       t.invocationLocked(),
		tolerated: slices.Clone(t.tolerated),
		onFailure: t.onFailure,
		before:    t.before,
		after:     t.after,
		stop:      stop,
	}
	exec := t.exec
	t.mu.Unlock()

	t.setState(StateRunning)
	exec.Go(t.name, func(execCtx context.Context) error {
		err := t.run(ctx, execCtx, rs)
		t.finish(h, err)
		return err
	})
	return h, nil
}

func (t *Task) run(startCtx, execCtx context.Context, rs runConfig) error {
	ctx, cancel := context.WithCancel(startCtx)
	defer cancel()
	if execCtx != nil {
		stopAfter := context.AfterFunc(execCtx, cancel)
		defer stopAfter()
	}

	log := t.log.With(logx.String("task", t.name))
	started := time.Now()
	log.Debug("looptask.started", logx.Duration("every", t.delay), logx.Bool("bound", t.Bound()))
	t.publish(EventStarted, Event{Task: t.name, Started: started})

	if rs.before != nil {
		if err := t.invoke(ctx, rs.before, rs.inv); err != nil {
			return fmt.Errorf("before hook: %w", err)
		}
	}

	for iter := uint64(1); ; iter++ {
		inv := rs.inv
		inv.Iteration = iter

		t.setState(StateInvoking)
		at := time.Now()
		err := t.invoke(ctx, t.work, inv)
		dur := time.Since(at)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Work gave up because the run context ended; that is a stop, not a failure.
			err = nil
		}
		ev := Event{Task: t.name, Iteration: iter, Started: at, Duration: dur}
		if err != nil {
			kind, _ := KindOf(err)
			ev.Kind, ev.Error = string(kind), err.Error()
			ev.Tolerated = kind != "" && slices.Contains(rs.tolerated, kind)
		}
		t.publish(EventIteration, ev)

		if err != nil {
			t.publish(EventFailure, ev)
			if !ev.Tolerated {
				log.Error("looptask.failed", logx.Uint64("iteration", iter), logx.String("kind", ev.Kind), logx.Err(err))
				return err
			}
			rs.onFailure(ctx, t, inv, err)
		} else {
			log.Debug("looptask.iteration", logx.Uint64("iteration", iter), logx.Duration("dur", dur))
		}

		if !t.active(ctx, rs.stop) {
			break
		}
		t.setState(StateSleeping)
		if !t.sleep(ctx, rs.stop) || !t.active(ctx, rs.stop) {
			break
		}
	}

	t.setState(StateStopping)
	if rs.after != nil {
		// The run context may already be done; the after hook still gets a live one.
		if err := t.invoke(context.WithoutCancel(ctx), rs.after, rs.inv); err != nil {
			return fmt.Errorf("after hook: %w", err)
		}
	}
	log.Info("looptask.stopped", logx.Duration("ran", time.Since(started)))
	return nil
}

// finish resets the task to Idle. running is cleared here too, so a fatal
// failure never leaves a stale running flag behind.
func (t *Task) finish(h *Handle, err error) {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
	t.setState(StateIdle)
	t.publish(EventStopped, Event{Task: t.name, Started: time.Now(), Error: errString(err)})
	h.err = err
	close(h.done)
}

func (t *Task) active(ctx context.Context, stop <-chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-stop:
		return false
	default:
		return true
	}
}

// sleep waits for the interval. It returns false when woken by Cancel or ctx.
func (t *Task) sleep(ctx context.Context, stop <-chan struct{}) bool {
	c, stopTimer := t.timer(t.delay)
	defer stopTimer()
	select {
	case <-c:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (t *Task) invoke(ctx context.Context, fn WorkFunc, inv Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("looptask.panic", logx.String("task", t.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = &Failure{Kind: KindPanic, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	inv = inv.clone()
	if t.receiver != nil {
		if inv.Receiver = t.receiver(); inv.Receiver == nil {
			return ErrReceiverGone
		}
	}
	return fn(ctx, inv)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
