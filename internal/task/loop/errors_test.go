package loop

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want FailureKind
		ok   bool
	}{
		{name: "nil", err: nil},
		{name: "plain", err: errors.New("boom")},
		{name: "failure", err: Fail("network", errors.New("refused")), want: "network", ok: true},
		{name: "wrapped failure", err: fmt.Errorf("healthcheck: %w", Fail("http_status", errors.New("503"))), want: "http_status", ok: true},
		{name: "deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), want: KindTimeout, ok: true},
		{name: "canceled", err: context.Canceled},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KindOf(tt.err)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("KindOf(%v) = (%q, %v), want (%q, %v)", tt.err, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFailNil(t *testing.T) {
	t.Parallel()
	if Fail("x", nil) != nil {
		t.Fatal("Fail(nil) should be nil")
	}
	inner := errors.New("inner")
	if err := Fail("x", inner); !errors.Is(err, inner) {
		t.Fatalf("Fail should unwrap to inner, got %v", err)
	}
}

func TestAsWork(t *testing.T) {
	t.Parallel()
	called := 0
	accepted := []any{
		WorkFunc(func(context.Context, Invocation) error { called++; return nil }),
		func(context.Context, Invocation) error { called++; return nil },
		func(context.Context) error { called++; return nil },
	}
	for i, fn := range accepted {
		w, err := AsWork(fn)
		if err != nil {
			t.Fatalf("AsWork(#%d) error: %v", i, err)
		}
		if err := w(context.Background(), Invocation{}); err != nil {
			t.Fatalf("work #%d: %v", i, err)
		}
	}
	if called != len(accepted) {
		t.Fatalf("called = %d, want %d", called, len(accepted))
	}

	rejected := []any{
		nil,
		func() {},
		func() error { return nil },
		func(context.Context) {},
		"not a func",
		(func(context.Context) error)(nil),
	}
	for i, fn := range rejected {
		if _, err := AsWork(fn); !errors.Is(err, ErrNotAsyncCallable) {
			t.Fatalf("AsWork(rejected #%d) = %v, want ErrNotAsyncCallable", i, err)
		}
	}
}

func TestHooksRejectNil(t *testing.T) {
	t.Parallel()
	tk := MustNew(Interval{Seconds: 1}, func(context.Context, Invocation) error { return nil })
	if err := tk.BeforeHook(nil); !errors.Is(err, ErrNotAsyncCallable) {
		t.Fatalf("BeforeHook(nil) = %v", err)
	}
	if err := tk.AfterHook(nil); !errors.Is(err, ErrNotAsyncCallable) {
		t.Fatalf("AfterHook(nil) = %v", err)
	}
}
