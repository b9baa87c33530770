package actions

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"looptask/internal/task/loop"
	logx "looptask/pkg/logx"
)

func TestBuiltinRegistry(t *testing.T) {
	t.Parallel()
	r := Builtin(logx.Nop(), nil)
	if got := r.Names(); !reflect.DeepEqual(got, []string{"http_check", "log", "speedtest_ping", "systemd_unit"}) {
		t.Fatalf("Names = %v", got)
	}
	if _, err := r.Lookup("missing"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("Lookup(missing) = %v", err)
	}
	if err := r.Register("log", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := r.Register("bad", func() error { return nil }); !errors.Is(err, loop.ErrNotAsyncCallable) {
		t.Fatalf("Register(sync func) = %v", err)
	}
}

func TestLogAction(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	work := Log(logx.NewWriter(&buf, "debug"))
	inv := loop.Invocation{Task: "heartbeat", Iteration: 3, Kwargs: map[string]any{"message": "alive", "level": "warn"}}
	if err := work(context.Background(), inv); err != nil {
		t.Fatalf("log action: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"message":"alive"`, `"level":"warn"`, `"task":"heartbeat"`, `"iteration":3`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s: %s", want, out)
		}
	}
	inv.Kwargs["level"] = "loud"
	if err := work(context.Background(), inv); err == nil {
		t.Fatal("expected unknown level error")
	}
}

func TestHTTPCheck(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer srv.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	work := HTTPCheck(srv.Client(), logx.Nop())
	tests := []struct {
		name   string
		kwargs map[string]any
		kind   loop.FailureKind
		ok     bool
	}{
		{name: "2xx", kwargs: map[string]any{"url": srv.URL + "/ok"}, ok: true},
		{name: "expected code", kwargs: map[string]any{"url": srv.URL + "/teapot", "expect": float64(418)}, ok: true},
		{name: "unexpected code", kwargs: map[string]any{"url": srv.URL + "/teapot"}, kind: KindHTTPStatus},
		{name: "wrong expect", kwargs: map[string]any{"url": srv.URL + "/ok", "expect": 204}, kind: KindHTTPStatus},
		{name: "timeout", kwargs: map[string]any{"url": srv.URL + "/slow", "timeout": "20ms"}, kind: loop.KindTimeout},
		{name: "refused", kwargs: map[string]any{"url": closedURL}, kind: KindNetwork},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := work(context.Background(), loop.Invocation{Task: "healthcheck", Kwargs: tt.kwargs})
			if tt.ok {
				if err != nil {
					t.Fatalf("check error: %v", err)
				}
				return
			}
			if kind, _ := loop.KindOf(err); kind != tt.kind {
				t.Fatalf("check error = %v (kind %q), want kind %q", err, kind, tt.kind)
			}
		})
	}

	if err := work(context.Background(), loop.Invocation{}); err == nil {
		t.Fatal("expected missing url error")
	} else if _, ok := loop.KindOf(err); ok {
		t.Fatalf("config error should carry no kind: %v", err)
	}
}

func TestKwargHelpers(t *testing.T) {
	t.Parallel()
	kw := map[string]any{"n": float64(4), "s": "7", "bad": 1.5, "d": "90s"}
	if n, err := intKwarg(kw, "n", 0); err != nil || n != 4 {
		t.Fatalf("intKwarg(n) = %d, %v", n, err)
	}
	if n, err := intKwarg(kw, "s", 0); err != nil || n != 7 {
		t.Fatalf("intKwarg(s) = %d, %v", n, err)
	}
	if _, err := intKwarg(kw, "bad", 0); err == nil {
		t.Fatal("expected error for fractional number")
	}
	if n, _ := intKwarg(kw, "missing", 9); n != 9 {
		t.Fatalf("default = %d", n)
	}
	if d, err := durationKwarg(kw, "d", 0); err != nil || d != 90*time.Second {
		t.Fatalf("durationKwarg = %v, %v", d, err)
	}
}
