package loop

import (
	"time"

	"looptask/internal/eventbus"
)

// Event types published on the bus given to WithEvents.
const (
	EventStarted   = "looptask.started"
	EventIteration = "looptask.iteration"
	EventFailure   = "looptask.failure"
	EventStopped   = "looptask.stopped"
)

// Event is the Data payload of every looptask.* bus event.
type Event struct {
	Task      string        `json:"task"`
	Iteration uint64        `json:"iteration,omitempty"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration,omitempty"`
	Kind      string        `json:"kind,omitempty"`
	Tolerated bool          `json:"tolerated,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (t *Task) publish(typ string, e Event) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: e})
}
