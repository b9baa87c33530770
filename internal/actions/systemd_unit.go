package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"

	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

const (
	KindUnitInactive loop.FailureKind = "unit_inactive"
	KindSystemdBus   loop.FailureKind = "systemd_bus"
)

// unitLister is the slice of *dbus.Conn the unit check needs.
type unitLister interface {
	ListUnitsByPatternsContext(ctx context.Context, states, patterns []string) ([]dbus.UnitStatus, error)
	Close()
}

type unitDialer func(ctx context.Context) (unitLister, error)

func dialSystemBus(ctx context.Context) (unitLister, error) {
	return dbus.NewSystemConnectionContext(ctx)
}

// SystemdUnit fails with KindUnitInactive unless the unit is active.
//
// kwargs:
//   - unit: unit name; ".service" is appended when no suffix is given
func SystemdUnit(log logx.Logger) loop.WorkFunc {
	return systemdUnit(log, dialSystemBus)
}

func systemdUnit(log logx.Logger, dial unitDialer) loop.WorkFunc {
	return func(ctx context.Context, inv loop.Invocation) error {
		unit := strings.TrimSpace(stringKwarg(inv.Kwargs, "unit", ""))
		if unit == "" {
			return errors.New("systemd_unit: kwargs.unit is required")
		}
		if !strings.Contains(unit, ".") {
			unit += ".service"
		}

		conn, err := dial(ctx)
		if err != nil {
			return loop.Fail(KindSystemdBus, fmt.Errorf("connect: %w", err))
		}
		defer conn.Close()

		units, err := conn.ListUnitsByPatternsContext(ctx, nil, []string{unit})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return loop.Fail(KindSystemdBus, fmt.Errorf("list %s: %w", unit, err))
		}
		var st *dbus.UnitStatus
		for i := range units {
			if units[i].Name == unit {
				st = &units[i]
				break
			}
		}
		if st == nil || st.LoadState == "not-found" {
			return loop.Fail(KindUnitInactive, fmt.Errorf("%s not found", unit))
		}
		if st.ActiveState != "active" {
			return loop.Fail(KindUnitInactive, fmt.Errorf("%s is %s (%s)", unit, st.ActiveState, st.SubState))
		}
		log.Debug("unit active", logx.String("task", inv.Task), logx.String("unit", unit), logx.String("sub", st.SubState))
		return nil
	}
}
