package loop

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"looptask/internal/eventbus"
	logx "looptask/pkg/logx"
)

// State is the observable phase of a task.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateInvoking
	StateSleeping
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateInvoking:
		return "invoking"
	case StateSleeping:
		return "sleeping"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Task is a periodic unit of work. Create it with New or Every.
//
// Interval and work are fixed for the life of the Task. Arguments, hooks and
// tolerated kinds may change between runs; a run uses the values captured by
// Start.
type Task struct {
	name     string
	interval Interval
	delay    time.Duration
	work     WorkFunc

	log   logx.Logger
	bus   eventbus.Bus
	exec  Executor
	timer timerFunc

	// receiver resolves the bound host; nil for unbound tasks.
	receiver func() any
	release  func()

	// handlerState holds per-task state of shared FailureHandlers.
	handlerState sync.Map

	mu        sync.Mutex
	args      []any
	kwargs    map[string]any
	tolerated []FailureKind
	onFailure FailureHandler
	before    WorkFunc
	after     WorkFunc
	running   bool
	stop      chan struct{}
	handle    *Handle

	state atomic.Int32

	bindMu sync.Mutex
	bound  map[any]*Task
}

// New builds a task that invokes work every iv.
func New(iv Interval, work WorkFunc, opts ...Option) (*Task, error) {
	if err := iv.validate(); err != nil {
		return nil, err
	}
	return newTask(iv, iv.Duration(), work, opts)
}

// Every is New with a single normalized duration. Sub-second delays are allowed.
func Every(d time.Duration, work WorkFunc, opts ...Option) (*Task, error) {
	if d <= 0 {
		return nil, ErrZeroDuration
	}
	return newTask(IntervalOf(d), d, work, opts)
}

// MustNew is New that panics on error. Intended for package-level definitions.
func MustNew(iv Interval, work WorkFunc, opts ...Option) *Task {
	t, err := New(iv, work, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func newTask(iv Interval, d time.Duration, work WorkFunc, opts []Option) (*Task, error) {
	if work == nil {
		return nil, ErrNotAsyncCallable
	}
	t := &Task{
		name:      funcName(work),
		interval:  iv,
		delay:     d,
		work:      work,
		log:       logx.Nop(),
		exec:      goExecutor{},
		timer:     realTimer,
		onFailure: DefaultFailureHandler,
	}
	for _, o := range opts {
		if o != nil {
			o(t)
		}
	}
	return t, nil
}

func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "task"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

func (t *Task) Name() string { return t.name }

// Interval returns the component form of the delay (sub-second part dropped).
func (t *Task) Interval() Interval { return t.interval }

// TotalDelay returns the delay between the end of one invocation and the start of the next.
func (t *Task) TotalDelay() time.Duration { return t.delay }

func (t *Task) String() string {
	return fmt.Sprintf("looptask(%s, every=%s)", t.name, t.delay)
}

// IsRunning reports whether the task is between Start and the loop observing
// cancellation (or a fatal failure).
func (t *Task) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) State() State { return State(t.state.Load()) }

func (t *Task) setState(s State) { t.state.Store(int32(s)) }

// Bound reports whether the task was produced by Bind.
func (t *Task) Bound() bool { return t.receiver != nil }

func (t *Task) Args() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.args)
}

func (t *Task) SetArgs(args ...any) {
	t.mu.Lock()
	t.args = append([]any(nil), args...)
	t.mu.Unlock()
}

func (t *Task) Kwargs() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.kwargs)
}

func (t *Task) SetKwargs(kw map[string]any) {
	t.mu.Lock()
	t.kwargs = maps.Clone(kw)
	t.mu.Unlock()
}

// Tolerate adds failure kinds for subsequent runs.
func (t *Task) Tolerate(kinds ...FailureKind) {
	t.mu.Lock()
	t.tolerated = appendKinds(t.tolerated, kinds)
	t.mu.Unlock()
}

// Tolerated returns the tolerated kinds in registration order.
func (t *Task) Tolerated() []FailureKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.tolerated)
}

// OnFailure replaces the failure handler for subsequent runs. nil restores the default.
func (t *Task) OnFailure(h FailureHandler) {
	if h == nil {
		h = DefaultFailureHandler
	}
	t.mu.Lock()
	t.onFailure = h
	t.mu.Unlock()
}

// BeforeHook registers fn to run once before the first invocation of each run.
// It replaces any previous before hook.
func (t *Task) BeforeHook(fn WorkFunc) error {
	if fn == nil {
		return ErrNotAsyncCallable
	}
	t.mu.Lock()
	t.before = fn
	t.mu.Unlock()
	return nil
}

// AfterHook registers fn to run once after each run stops.
// It replaces any previous after hook.
func (t *Task) AfterHook(fn WorkFunc) error {
	if fn == nil {
		return ErrNotAsyncCallable
	}
	t.mu.Lock()
	t.after = fn
	t.mu.Unlock()
	return nil
}

// Cancel asks the running loop to stop. It does not interrupt an in-flight
// invocation; a sleeping loop wakes immediately. No-op when not running.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stop)
}

// Call invokes work once with the stored arguments, bypassing hooks, the loop
// and the running state.
func (t *Task) Call(ctx context.Context) error {
	t.mu.Lock()
	inv := t.invocationLocked()
	t.mu.Unlock()
	if t.receiver != nil {
		if inv.Receiver = t.receiver(); inv.Receiver == nil {
			return ErrReceiverGone
		}
	}
	return t.work(ctx, inv)
}

func (t *Task) invocationLocked() Invocation {
	return Invocation{
		Task:   t.name,
		Args:   slices.Clone(t.args),
		Kwargs: maps.Clone(t.kwargs),
	}
}

// clone copies the definition for Bind. Runtime state is not copied.
func (t *Task) clone() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Task{
		name:      t.name,
		interval:  t.interval,
		delay:     t.delay,
		work:      t.work,
		log:       t.log,
		bus:       t.bus,
		exec:      t.exec,
		timer:     t.timer,
		args:      slices.Clone(t.args),
		kwargs:    maps.Clone(t.kwargs),
		tolerated: slices.Clone(t.tolerated),
		onFailure: t.onFailure,
		before:    t.before,
		after:     t.after,
	}
}
