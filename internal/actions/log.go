package actions

import (
	"context"
	"fmt"
	"strings"

	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

// Log writes kwargs.message (default "tick") at kwargs.level (default info).
// Positional args are appended to the entry.
func Log(log logx.Logger) loop.WorkFunc {
	return func(_ context.Context, inv loop.Invocation) error {
		msg := stringKwarg(inv.Kwargs, "message", "tick")
		fields := []logx.Field{
			logx.String("task", inv.Task),
			logx.Uint64("iteration", inv.Iteration),
		}
		if len(inv.Args) > 0 {
			fields = append(fields, logx.Any("args", inv.Args))
		}
		switch strings.ToLower(stringKwarg(inv.Kwargs, "level", "info")) {
		case "debug":
			log.Debug(msg, fields...)
		case "info":
			log.Info(msg, fields...)
		case "warn":
			log.Warn(msg, fields...)
		case "error":
			log.Error(msg, fields...)
		default:
			return fmt.Errorf("kwargs.level: unknown level %q", inv.Kwargs["level"])
		}
		return nil
	}
}
