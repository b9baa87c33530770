package loop

import (
	"sync"
	"sync/atomic"
)

// HostBindings stores the tasks bound to a host on the host itself. Embed it
// in a host type and its bindings live and die with the host:
//
//	type Poller struct {
//		loop.HostBindings
//		url string
//	}
type HostBindings struct {
	mu sync.Mutex
	m  map[*Task]*Task
}

func (b *HostBindings) loopBindings() *HostBindings { return b }

type bindingHolder interface {
	loopBindings() *HostBindings
}

func (b *HostBindings) lookup(def *Task) *Task {
	return b.m[def]
}

func (b *HostBindings) store(def, t *Task) {
	if b.m == nil {
		b.m = make(map[*Task]*Task)
	}
	b.m[def] = t
}

// Bind returns the task bound to host. The first call for a host clones def
// (arguments, hooks, tolerated kinds and handler included); later calls return
// the same bound task, so each host gets its own independent loop.
//
// Hosts embedding HostBindings keep the binding themselves and release it
// when they are collected. Any other host is cached on def by pointer
// identity and stays bound until Unbind. A nil host returns def itself.
func Bind[H any](def *Task, host *H) *Task {
	if host == nil {
		return def
	}
	if h, ok := any(host).(bindingHolder); ok {
		b := h.loopBindings()
		b.mu.Lock()
		defer b.mu.Unlock()
		if t := b.lookup(def); t != nil {
			return t
		}
		t := bindTo(def, host)
		b.store(def, t)
		return t
	}

	def.bindMu.Lock()
	defer def.bindMu.Unlock()
	if t, ok := def.bound[host]; ok {
		return t
	}
	t := bindTo(def, host)
	if def.bound == nil {
		def.bound = make(map[any]*Task)
	}
	def.bound[host] = t
	return t
}

// Unbind drops host's binding of def. A bound task still running fails with
// ErrReceiverGone on its next invocation. It reports whether a binding existed.
func Unbind[H any](def *Task, host *H) bool {
	if host == nil {
		return false
	}
	var t *Task
	if h, ok := any(host).(bindingHolder); ok {
		b := h.loopBindings()
		b.mu.Lock()
		t = b.lookup(def)
		delete(b.m, def)
		b.mu.Unlock()
	} else {
		def.bindMu.Lock()
		t = def.bound[host]
		delete(def.bound, host)
		def.bindMu.Unlock()
	}
	if t == nil {
		return false
	}
	t.release()
	return true
}

func bindTo[H any](def *Task, host *H) *Task {
	t := def.clone()
	var ref atomic.Pointer[H]
	ref.Store(host)
	t.receiver = func() any {
		if p := ref.Load(); p != nil {
			return p
		}
		return nil
	}
	t.release = func() { ref.Store(nil) }
	return t
}

// Bindings returns how many hosts without HostBindings hold a bound copy of t.
func (t *Task) Bindings() int {
	t.bindMu.Lock()
	defer t.bindMu.Unlock()
	return len(t.bound)
}
