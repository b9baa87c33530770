package loop

import (
	"context"
	"maps"
	"strings"
	"time"

	"looptask/internal/eventbus"
	logx "looptask/pkg/logx"
)

// Executor hosts a task's execution unit. supervisor.Supervisor satisfies it.
// The ctx passed to fn bounds the run: when it is done the loop stops at the
// next boundary.
type Executor interface {
	Go(name string, fn func(ctx context.Context) error)
}

type goExecutor struct{}

func (goExecutor) Go(_ string, fn func(ctx context.Context) error) {
	go func() { _ = fn(context.Background()) }()
}

// timerFunc starts a one-shot timer; the second value stops it.
type timerFunc func(d time.Duration) (<-chan time.Time, func() bool)

func realTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// Option configures a Task at construction.
type Option func(*Task)

func WithName(name string) Option {
	return func(t *Task) {
		if n := strings.TrimSpace(name); n != "" {
			t.name = n
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(t *Task) {
		if !log.IsZero() {
			t.log = log
		}
	}
}

// WithEvents publishes lifecycle events (see EventStarted and friends) to bus.
func WithEvents(bus eventbus.Bus) Option {
	return func(t *Task) { t.bus = bus }
}

// WithExecutor runs the loop on exec instead of a bare goroutine.
func WithExecutor(exec Executor) Option {
	return func(t *Task) {
		if exec != nil {
			t.exec = exec
		}
	}
}

// Tolerate adds failure kinds that do not end the run by themselves; they are
// routed to the FailureHandler instead.
func Tolerate(kinds ...FailureKind) Option {
	return func(t *Task) { t.tolerated = appendKinds(t.tolerated, kinds) }
}

// WithFailureHandler replaces DefaultFailureHandler.
func WithFailureHandler(h FailureHandler) Option {
	return func(t *Task) {
		if h != nil {
			t.onFailure = h
		}
	}
}

// WithArgs sets the initial positional arguments.
func WithArgs(args ...any) Option {
	return func(t *Task) { t.args = append([]any(nil), args...) }
}

// WithKwargs sets the initial named arguments.
func WithKwargs(kw map[string]any) Option {
	return func(t *Task) { t.kwargs = maps.Clone(kw) }
}

func withTimer(fn timerFunc) Option {
	return func(t *Task) { t.timer = fn }
}

// StartOption supplies late arguments to Start.
type StartOption func(*startOptions)

type startOptions struct {
	args   []any
	kwargs map[string]any
}

// Args appends positional arguments to the stored ones.
func Args(args ...any) StartOption {
	return func(o *startOptions) { o.args = append(o.args, args...) }
}

// Kwargs merges named arguments into the stored ones; later keys win.
func Kwargs(kw map[string]any) StartOption {
	return func(o *startOptions) {
		if o.kwargs == nil {
			o.kwargs = make(map[string]any, len(kw))
		}
		maps.Copy(o.kwargs, kw)
	}
}

func appendKinds(dst []FailureKind, kinds []FailureKind) []FailureKind {
	for _, k := range kinds {
		dup := false
		for _, have := range dst {
			if have == k {
				dup = true
				break
			}
		}
		if !dup && k != "" {
			dst = append(dst, k)
		}
	}
	return dst
}
