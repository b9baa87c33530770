package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	logx "looptask/pkg/logx"
)

// Handler reacts to a single event. Handlers run on the registry's dispatch
// goroutine, one at a time, in registration order.
type Handler func(ctx context.Context, e Event)

// Registry maps event types to handlers and pumps a Bus subscription into them.
//
// Handlers are attached by name (the event Type). "*" matches every event.
// A Registry is independent of whoever publishes: publishers never see it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]registered
	seq      atomic.Uint64

	log logx.Logger
}

type registered struct {
	id uint64
	fn Handler
}

const Wildcard = "*"

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{handlers: map[string][]registered{}, log: log}
}

// On registers fn for events of the given type. The returned func removes it.
func (r *Registry) On(eventType string, fn Handler) (off func()) {
	if fn == nil {
		return func() {}
	}
	id := r.seq.Add(1)
	r.mu.Lock()
	r.handlers[eventType] = append(r.handlers[eventType], registered{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			hs := r.handlers[eventType]
			for i, h := range hs {
				if h.id == id {
					r.handlers[eventType] = append(hs[:i:i], hs[i+1:]...)
					break
				}
			}
			if len(r.handlers[eventType]) == 0 {
				delete(r.handlers, eventType)
			}
		})
	}
}

// Types returns the registered event types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Dispatch delivers e to every handler registered for e.Type and to wildcard
// handlers. A panicking handler is logged and skipped. It returns the number of
// handlers called.
func (r *Registry) Dispatch(ctx context.Context, e Event) int {
	r.mu.RLock()
	hs := make([]registered, 0, len(r.handlers[e.Type])+len(r.handlers[Wildcard]))
	hs = append(hs, r.handlers[e.Type]...)
	if e.Type != Wildcard {
		hs = append(hs, r.handlers[Wildcard]...)
	}
	r.mu.RUnlock()

	sort.Slice(hs, func(i, j int) bool { return hs[i].id < hs[j].id })
	for _, h := range hs {
		r.call(ctx, h.fn, e)
	}
	return len(hs)
}

func (r *Registry) call(ctx context.Context, fn Handler, e Event) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("event handler panicked", logx.String("event", e.Type), logx.String("panic", fmt.Sprint(p)), logx.Stack(string(debug.Stack())))
		}
	}()
	fn(ctx, e)
}

// Run subscribes to bus and dispatches until ctx is done.
func (r *Registry) Run(ctx context.Context, bus Bus, buffer int) error {
	ch, unsub := bus.Subscribe(buffer)
	defer unsub()
	return r.Serve(ctx, ch)
}

// Serve dispatches events from an existing subscription until ctx is done or
// ch is closed. Subscribe first when no event may be missed.
func (r *Registry) Serve(ctx context.Context, ch <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			r.Dispatch(ctx, e)
		}
	}
}
