package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/coreos/go-systemd/v22/dbus"

	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

type fakeBus struct {
	units    []dbus.UnitStatus
	err      error
	patterns []string
	closed   bool
}

func (f *fakeBus) ListUnitsByPatternsContext(_ context.Context, _, patterns []string) ([]dbus.UnitStatus, error) {
	f.patterns = patterns
	return f.units, f.err
}

func (f *fakeBus) Close() { f.closed = true }

func TestSystemdUnit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		unit     string
		units    []dbus.UnitStatus
		listErr  error
		dialErr  error
		wantKind loop.FailureKind
		wantErr  bool
	}{
		{name: "active", unit: "nginx", units: []dbus.UnitStatus{{Name: "nginx.service", LoadState: "loaded", ActiveState: "active", SubState: "running"}}},
		{name: "timer suffix kept", unit: "backup.timer", units: []dbus.UnitStatus{{Name: "backup.timer", LoadState: "loaded", ActiveState: "active"}}},
		{name: "failed", unit: "nginx", units: []dbus.UnitStatus{{Name: "nginx.service", LoadState: "loaded", ActiveState: "failed", SubState: "failed"}}, wantKind: KindUnitInactive, wantErr: true},
		{name: "not found", unit: "ghost", units: []dbus.UnitStatus{{Name: "ghost.service", LoadState: "not-found"}}, wantKind: KindUnitInactive, wantErr: true},
		{name: "no match", unit: "ghost", wantKind: KindUnitInactive, wantErr: true},
		{name: "list error", unit: "nginx", listErr: errors.New("bus gone"), wantKind: KindSystemdBus, wantErr: true},
		{name: "dial error", unit: "nginx", dialErr: errors.New("no bus"), wantKind: KindSystemdBus, wantErr: true},
		{name: "missing unit", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			bus := &fakeBus{units: tc.units, err: tc.listErr}
			work := systemdUnit(logx.Nop(), func(context.Context) (unitLister, error) {
				if tc.dialErr != nil {
					return nil, tc.dialErr
				}
				return bus, nil
			})
			err := work(context.Background(), loop.Invocation{Task: "unit", Kwargs: map[string]any{"unit": tc.unit}})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if kind, _ := loop.KindOf(err); kind != tc.wantKind {
				t.Fatalf("kind = %q, want %q (%v)", kind, tc.wantKind, err)
			}
			if tc.unit != "" && tc.dialErr == nil && !bus.closed {
				t.Fatal("connection not closed")
			}
		})
	}
}
