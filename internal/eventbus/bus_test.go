package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "looptask/pkg/logx"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"})

	if e := <-a; e.Type != "one" || e.Time.IsZero() {
		t.Fatalf("unexpected event on a: %+v", e)
	}
	if len(c) != 2 {
		t.Fatalf("len(c) = %d, want 2", len(c))
	}
	if got := Dropped(b); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	b.Publish(Event{Type: "after"})
}

func TestRegistryDispatchByName(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())

	var got []string
	offA := r.On("task.failed", func(_ context.Context, e Event) { got = append(got, "a:"+e.Type) })
	r.On(Wildcard, func(_ context.Context, e Event) { got = append(got, "*:"+e.Type) })
	r.On("task.failed", func(_ context.Context, e Event) { got = append(got, "b:"+e.Type) })

	if n := r.Dispatch(context.Background(), Event{Type: "task.failed"}); n != 3 {
		t.Fatalf("Dispatch called %d handlers, want 3", n)
	}
	want := []string{"a:task.failed", "*:task.failed", "b:task.failed"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	offA()
	got = nil
	r.Dispatch(context.Background(), Event{Type: "task.failed"})
	if len(got) != 2 {
		t.Fatalf("after off: got %v", got)
	}
	if types := r.Types(); len(types) != 2 || types[0] != "*" || types[1] != "task.failed" {
		t.Fatalf("Types = %v", types)
	}
}

func TestRegistryRecoversHandlerPanic(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	called := false
	r.On("x", func(context.Context, Event) { panic("boom") })
	r.On("x", func(context.Context, Event) { called = true })
	r.Dispatch(context.Background(), Event{Type: "x"})
	if !called {
		t.Fatal("second handler should still run after a panic")
	}
}

func TestRegistryRunPumpsBus(t *testing.T) {
	t.Parallel()
	b := New()
	r := NewRegistry(logx.Nop())

	var mu sync.Mutex
	seen := 0
	done := make(chan struct{})
	r.On("tick", func(context.Context, Event) {
		mu.Lock()
		seen++
		if seen == 3 {
			close(done)
		}
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		_ = r.Run(ctx, b, 16)
		close(exited)
	}()

	// Publish until the subscription is attached and three events arrive.
	deadline := time.After(2 * time.Second)
	for {
		b.Publish(Event{Type: "tick"})
		select {
		case <-done:
			cancel()
			<-exited
			return
		case <-deadline:
			t.Fatal("timed out waiting for dispatch")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
