// Package telegram forwards task failures to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"looptask/internal/eventbus"
	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

type Config struct {
	Token      string
	ChatID     int64
	RatePerMin int
	QueueSize  int
	// Tolerated also alerts on tolerated failures.
	Tolerated bool
}

// Sender delivers one alert.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type botSender struct {
	bot  *tele.Bot
	chat *tele.Chat
}

// NewBotSender builds a send-only bot. Offline skips the getMe round trip;
// nothing here polls for updates.
func NewBotSender(token string, chatID int64) (Sender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &botSender{bot: b, chat: &tele.Chat{ID: chatID}}, nil
}

func (s *botSender) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(s.chat, text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

// Notifier queues alerts from bus events and sends them at a bounded rate.
type Notifier struct {
	log       logx.Logger
	sender    Sender
	limiter   *rate.Limiter
	queue     chan string
	tolerated bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Notifier, error) {
	s, err := NewBotSender(cfg.Token, cfg.ChatID)
	if err != nil {
		return nil, err
	}
	return NewWithSender(s, cfg, log), nil
}

func NewWithSender(s Sender, cfg Config, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 20
	}
	qs := cfg.QueueSize
	if qs <= 0 {
		qs = 64
	}
	return &Notifier{
		log:       log,
		sender:    s,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), max(1, perMin/10)),
		queue:     make(chan string, qs),
		tolerated: cfg.Tolerated,
	}
}

// Handle is an eventbus.Handler for looptask.* events.
func (n *Notifier) Handle(_ context.Context, e eventbus.Event) {
	ev, ok := e.Data.(loop.Event)
	if !ok {
		return
	}
	var text string
	switch e.Type {
	case loop.EventStopped:
		if ev.Error == "" {
			return
		}
		text = fmt.Sprintf("❌ task %s stopped\n%s", ev.Task, ev.Error)
	case loop.EventFailure:
		if !ev.Tolerated || !n.tolerated {
			return
		}
		text = fmt.Sprintf("⚠️ task %s failed (iteration %d, %s)\n%s", ev.Task, ev.Iteration, ev.Kind, ev.Error)
	default:
		return
	}
	select {
	case n.queue <- text:
	default:
		n.dropped.Add(1)
		n.log.Warn("alert dropped (queue full)", logx.String("task", ev.Task))
	}
}

// Run sends queued alerts until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := n.sender.Send(ctx, text); err != nil {
				n.failed.Add(1)
				n.log.Warn("alert send failed", logx.Err(err))
				continue
			}
			n.sent.Add(1)
		}
	}
}

// Stats returns sent, dropped and failed counters.
func (n *Notifier) Stats() (sent, dropped, failed uint64) {
	return n.sent.Load(), n.dropped.Load(), n.failed.Load()
}
