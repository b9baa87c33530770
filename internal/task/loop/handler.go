package loop

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	logx "looptask/pkg/logx"
)

// FailureHandler is called for tolerated failures. It runs on the loop's
// execution unit; the loop resumes when it returns unless it cancels the task.
type FailureHandler func(ctx context.Context, t *Task, inv Invocation, err error)

// DefaultFailureHandler logs the failure and cancels the task.
func DefaultFailureHandler(_ context.Context, t *Task, inv Invocation, err error) {
	kind, _ := KindOf(err)
	t.log.Warn("looptask.failure",
		logx.String("task", t.name),
		logx.Uint64("iteration", inv.Iteration),
		logx.String("kind", string(kind)),
		logx.Err(err),
	)
	t.Cancel()
}

// ResumeHandler keeps the loop going on tolerated failures as long as they
// stay under burst per window. Once the budget is spent the task is canceled.
// Each task gets its own budget, kept on the task, so sharing one handler
// across many tasks holds no task alive.
func ResumeHandler(window time.Duration, burst int) FailureHandler {
	if burst < 1 {
		burst = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	every := rate.Every(window / time.Duration(burst))
	key := new(budgetKey)

	return func(ctx context.Context, t *Task, inv Invocation, err error) {
		v, _ := t.handlerState.LoadOrStore(key, rate.NewLimiter(every, burst))
		lim := v.(*rate.Limiter)
		kind, _ := KindOf(err)
		if lim.Allow() {
			t.log.Warn("looptask.failure.resume",
				logx.String("task", t.name),
				logx.Uint64("iteration", inv.Iteration),
				logx.String("kind", string(kind)),
				logx.Err(err),
			)
			return
		}
		t.log.Error("looptask.failure.budget_exhausted",
			logx.String("task", t.name),
			logx.Uint64("iteration", inv.Iteration),
			logx.String("kind", string(kind)),
			logx.Err(err),
		)
		t.Cancel()
	}
}

// budgetKey identifies one ResumeHandler in Task.handlerState.
type budgetKey struct{ _ byte }
