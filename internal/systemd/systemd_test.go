package systemd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "looptask/pkg/logx"
)

type fakeNotify struct {
	mu     sync.Mutex
	states []string
	err    error
}

func (f *fakeNotify) notify(_ bool, state string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	return f.err == nil, f.err
}

func (f *fakeNotify) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.states...)
}

func TestNotifierStates(t *testing.T) {
	t.Parallel()
	f := &fakeNotify{}
	n := &Notifier{log: logx.Nop(), notify: f.notify}
	n.Ready()
	n.Status("%d tasks", 3)
	n.Stopping()
	got := f.list()
	want := []string{daemon.SdNotifyReady, "STATUS=3 tasks", daemon.SdNotifyStopping}
	if len(got) != len(want) {
		t.Fatalf("states = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWatchdogTaskDisabled(t *testing.T) {
	t.Parallel()
	n := &Notifier{log: logx.Nop(), watchdog: func(bool) (time.Duration, error) { return 0, nil }}
	tk, err := n.WatchdogTask()
	if err != nil || tk != nil {
		t.Fatalf("WatchdogTask = %v, %v", tk, err)
	}

	n.watchdog = func(bool) (time.Duration, error) { return 0, errors.New("bad WATCHDOG_USEC") }
	if _, err := n.WatchdogTask(); err == nil {
		t.Fatal("expected watchdog error")
	}
}

func TestWatchdogTaskPings(t *testing.T) {
	t.Parallel()
	f := &fakeNotify{}
	n := &Notifier{
		log:      logx.Nop(),
		notify:   f.notify,
		watchdog: func(bool) (time.Duration, error) { return 40 * time.Millisecond, nil },
	}
	tk, err := n.WatchdogTask()
	if err != nil || tk == nil {
		t.Fatalf("WatchdogTask = %v, %v", tk, err)
	}
	if tk.TotalDelay() != 20*time.Millisecond {
		t.Fatalf("TotalDelay = %v", tk.TotalDelay())
	}
	h, err := tk.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(f.list()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("watchdog did not ping")
		}
		time.Sleep(5 * time.Millisecond)
	}
	tk.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	for _, s := range f.list() {
		if s != daemon.SdNotifyWatchdog {
			t.Fatalf("unexpected state %q", s)
		}
	}
}
