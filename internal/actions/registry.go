// Package actions holds the named work units a configured task can run.
//
// An action is a loop.WorkFunc; per-task settings arrive in Invocation.Kwargs.
package actions

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

// Failure kinds produced by the built-in actions. Tasks opt into tolerating
// them by name.
const (
	KindNetwork    loop.FailureKind = "network"
	KindHTTPStatus loop.FailureKind = "http_status"
	KindNoServers  loop.FailureKind = "no_servers"
	KindLatency    loop.FailureKind = "latency"
)

var ErrUnknownAction = errors.New("unknown action")

type Registry struct {
	mu sync.RWMutex
	m  map[string]loop.WorkFunc
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]loop.WorkFunc{}}
}

// Builtin returns a registry with log, http_check, speedtest_ping and systemd_unit.
func Builtin(log logx.Logger, client *http.Client) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	if client == nil {
		client = &http.Client{}
	}
	r := NewRegistry()
	r.MustRegister("log", Log(log.With(logx.String("action", "log"))))
	r.MustRegister("http_check", HTTPCheck(client, log.With(logx.String("action", "http_check"))))
	r.MustRegister("speedtest_ping", SpeedtestPing(log.With(logx.String("action", "speedtest_ping"))))
	r.MustRegister("systemd_unit", SystemdUnit(log.With(logx.String("action", "systemd_unit"))))
	return r
}

// Register adds fn under name. fn may be any shape loop.AsWork accepts.
func (r *Registry) Register(name string, fn any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("action name required")
	}
	w, err := loop.AsWork(fn)
	if err != nil {
		return fmt.Errorf("action %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.m[name]; dup {
		return fmt.Errorf("action %s already registered", name)
	}
	r.m[name] = w
	return nil
}

func (r *Registry) MustRegister(name string, fn any) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (loop.WorkFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.m[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return w, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// intKwarg reads an integer kwarg. Config files decode numbers as float64.
func intKwarg(kw map[string]any, key string, def int) (int, error) {
	v, ok := kw[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("kwargs.%s: want integer, got %v", key, x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("kwargs.%s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("kwargs.%s: want integer, got %T", key, v)
	}
}

func durationKwarg(kw map[string]any, key string, def time.Duration) (time.Duration, error) {
	v, ok := kw[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case time.Duration:
		return x, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("kwargs.%s: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("kwargs.%s: want duration string, got %T", key, v)
	}
}

func stringKwarg(kw map[string]any, key, def string) string {
	if s, ok := kw[key].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}
