// Package systemd reports service state to the service manager over the
// sd_notify socket. All calls are no-ops outside systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

// KindNotify tags a failed watchdog ping.
const KindNotify loop.FailureKind = "sd_notify"

type Notifier struct {
	log      logx.Logger
	notify   func(unsetEnv bool, state string) (bool, error)
	watchdog func(unsetEnv bool) (time.Duration, error)
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log, notify: daemon.SdNotify, watchdog: daemon.SdWatchdogEnabled}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	switch {
	case err != nil:
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Reloading() {
	n.send(daemon.SdNotifyReloading)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) {
	n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// WatchdogTask returns a periodic task that pings the watchdog at half the
// configured WatchdogSec. It returns nil when the unit has no watchdog.
// A failed ping is tolerated a few times per minute before the task stops.
func (n *Notifier) WatchdogTask(opts ...loop.Option) (*loop.Task, error) {
	every, err := n.watchdog(false)
	if err != nil {
		return nil, fmt.Errorf("watchdog: %w", err)
	}
	if every <= 0 {
		return nil, nil
	}
	every /= 2
	opts = append([]loop.Option{
		loop.WithName("systemd.watchdog"),
		loop.Tolerate(KindNotify),
		loop.WithFailureHandler(loop.ResumeHandler(time.Minute, 3)),
	}, opts...)
	return loop.Every(every, n.ping, opts...)
}

func (n *Notifier) ping(context.Context, loop.Invocation) error {
	if _, err := n.notify(false, daemon.SdNotifyWatchdog); err != nil {
		return loop.Fail(KindNotify, err)
	}
	return nil
}
