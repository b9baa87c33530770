package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"looptask/internal/eventbus"
	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	fail  bool
	got   chan struct{}
}

func (f *fakeSender) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.got <- struct{}{}
	if f.fail {
		return errors.New("send failed")
	}
	return nil
}

func TestNotifierFiltersAndSends(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{got: make(chan struct{}, 8)}
	n := NewWithSender(fs, Config{RatePerMin: 600}, logx.Nop())

	ctx := context.Background()
	n.Handle(ctx, eventbus.Event{Type: loop.EventIteration, Data: loop.Event{Task: "a"}})
	n.Handle(ctx, eventbus.Event{Type: loop.EventStopped, Data: loop.Event{Task: "a"}})
	n.Handle(ctx, eventbus.Event{Type: loop.EventFailure, Data: loop.Event{Task: "a", Tolerated: true, Kind: "network"}})
	n.Handle(ctx, eventbus.Event{Type: "other", Data: "x"})
	n.Handle(ctx, eventbus.Event{Type: loop.EventStopped, Data: loop.Event{Task: "healthcheck", Error: "http_status: 503"}})

	rctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- n.Run(rctx) }()

	select {
	case <-fs.got:
	case <-time.After(2 * time.Second):
		t.Fatal("alert not sent")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.texts) != 1 || !strings.Contains(fs.texts[0], "healthcheck") || !strings.Contains(fs.texts[0], "503") {
		t.Fatalf("texts = %q", fs.texts)
	}
}

func TestNotifierToleratedOptIn(t *testing.T) {
	t.Parallel()
	n := NewWithSender(&fakeSender{got: make(chan struct{}, 1)}, Config{Tolerated: true, QueueSize: 1}, logx.Nop())
	ev := eventbus.Event{Type: loop.EventFailure, Data: loop.Event{Task: "a", Iteration: 2, Tolerated: true, Kind: "network", Error: "refused"}}
	n.Handle(context.Background(), ev)
	n.Handle(context.Background(), ev)
	if len(n.queue) != 1 {
		t.Fatalf("queued = %d, want 1", len(n.queue))
	}
	if _, dropped, _ := n.Stats(); dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if text := <-n.queue; !strings.Contains(text, "iteration 2") || !strings.Contains(text, "network") {
		t.Fatalf("text = %q", text)
	}
}

func TestNewBotSenderRequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := NewBotSender("", 1); err == nil {
		t.Fatal("expected token error")
	}
	if _, err := NewBotSender("123:abc", 0); err == nil {
		t.Fatal("expected chat id error")
	}
}
