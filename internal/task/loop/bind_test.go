package loop

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

type tenant struct {
	id   int
	name string
	hits []int
}

// poller keeps its bindings itself.
type poller struct {
	HostBindings
	url string
}

type emptyHost struct{}

var (
	globalTenant = tenant{id: 9, name: "global"}
	globalPoller = poller{url: "http://global"}
)

func hostWork(_ context.Context, inv Invocation) error {
	h := inv.Receiver.(*tenant)
	h.hits = append(h.hits, h.id)
	return nil
}

// receiverWork reports a missing receiver instead of asserting its type.
func receiverWork(_ context.Context, inv Invocation) error {
	if inv.Receiver == nil {
		return errors.New("no receiver")
	}
	return nil
}

func TestBindPerHost(t *testing.T) {
	t.Parallel()
	def := MustNew(Interval{Minutes: 1}, hostWork, WithName("sweep"), WithArgs("a"))
	h1 := &tenant{id: 1, name: "one"}
	h2 := &tenant{id: 2, name: "two"}

	b1 := Bind(def, h1)
	if Bind(def, h1) != b1 {
		t.Fatal("Bind should cache per host")
	}
	b2 := Bind(def, h2)
	if b2 == b1 || b1 == def {
		t.Fatal("each host needs its own task")
	}
	if !b1.Bound() || def.Bound() {
		t.Fatal("Bound flags wrong")
	}
	if def.Bindings() != 2 {
		t.Fatalf("Bindings = %d, want 2", def.Bindings())
	}
	if err := b1.Call(context.Background()); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if err := b2.Call(context.Background()); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(h1.hits) != 1 || h1.hits[0] != 1 || len(h2.hits) != 1 || h2.hits[0] != 2 {
		t.Fatalf("hits = %v / %v", h1.hits, h2.hits)
	}
	if b1.Name() != "sweep" || b1.Args()[0] != "a" {
		t.Fatalf("bound copy lost definition: %s %v", b1.Name(), b1.Args())
	}

	// Bound copies are independent of each other.
	b1.SetArgs("b")
	if b2.Args()[0] != "a" || def.Args()[0] != "a" {
		t.Fatal("SetArgs leaked across bindings")
	}
	if Bind[tenant](def, nil) != def {
		t.Fatal("nil host should return the definition")
	}
}

func TestBindPackageLevelAndEmptyHosts(t *testing.T) {
	t.Parallel()
	def := MustNew(Interval{Minutes: 1}, receiverWork, WithName("static"))

	empty := &emptyHost{}
	onGlobal := Bind(def, &globalTenant)
	onEmpty := Bind(def, empty)
	onPoller := Bind(def, &globalPoller)

	if onGlobal == onEmpty || onGlobal == onPoller || onEmpty == onPoller {
		t.Fatal("hosts of different types must get separate bindings")
	}
	if Bind(def, &globalTenant) != onGlobal || Bind(def, empty) != onEmpty || Bind(def, &globalPoller) != onPoller {
		t.Fatal("repeated Bind should return the cached task")
	}
	for name, tk := range map[string]*Task{"global": onGlobal, "empty": onEmpty, "poller": onPoller} {
		if err := tk.Call(context.Background()); err != nil {
			t.Fatalf("%s: Call = %v", name, err)
		}
	}
	if got := onGlobal.receiver(); got != &globalTenant {
		t.Fatalf("receiver = %v, want the package-level host", got)
	}
	// The poller keeps its own binding; only the other two live on def.
	if def.Bindings() != 2 {
		t.Fatalf("Bindings = %d, want 2", def.Bindings())
	}
}

func TestUnbindReleasesReceiver(t *testing.T) {
	t.Parallel()
	def := MustNew(Interval{Minutes: 1}, receiverWork)
	host := &tenant{id: 3}
	p := &poller{url: "http://local"}

	bound, boundP := Bind(def, host), Bind(def, p)
	if !Unbind(def, host) || !Unbind(def, p) {
		t.Fatal("Unbind should report an existing binding")
	}
	if Unbind(def, host) {
		t.Fatal("second Unbind should report nothing to drop")
	}
	if def.Bindings() != 0 {
		t.Fatalf("Bindings = %d after Unbind", def.Bindings())
	}
	for _, tk := range []*Task{bound, boundP} {
		if err := tk.Call(context.Background()); !errors.Is(err, ErrReceiverGone) {
			t.Fatalf("Call after Unbind = %v, want ErrReceiverGone", err)
		}
	}
	if Bind(def, host) == bound {
		t.Fatal("Bind after Unbind should create a fresh binding")
	}
}

func TestBindRunsIndependently(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	def := MustNew(Interval{Seconds: 5}, func(context.Context, Invocation) error { return nil }, withTimer(clock.after))
	h1, h2 := &tenant{id: 1}, &tenant{id: 2}
	b1, b2 := Bind(def, h1), Bind(def, h2)

	r1, err := b1.Start(context.Background())
	if err != nil {
		t.Fatalf("Start b1: %v", err)
	}
	r2, err := b2.Start(context.Background())
	if err != nil {
		t.Fatalf("Start b2: %v", err)
	}
	clock.waitSleep(t)
	clock.waitSleep(t)
	if def.IsRunning() {
		t.Fatal("definition should stay idle")
	}
	b1.Cancel()
	if err := waitHandle(t, r1); err != nil {
		t.Fatalf("b1: %v", err)
	}
	if !b2.IsRunning() {
		t.Fatal("canceling one binding stopped the other")
	}
	b2.Cancel()
	if err := waitHandle(t, r2); err != nil {
		t.Fatalf("b2: %v", err)
	}
}

func TestHostBindingsDieWithHost(t *testing.T) {
	t.Parallel()
	def := MustNew(Interval{Minutes: 1}, receiverWork)
	collected := make(chan struct{})
	func() {
		p := &poller{url: "http://short-lived"}
		bound := Bind(def, p)
		if Bind(def, p) != bound {
			t.Error("Bind should cache on the host")
		}
		runtime.AddCleanup(bound, func(ch chan struct{}) { close(ch) }, collected)
	}()
	if def.Bindings() != 0 {
		t.Fatalf("definition should not track host-stored bindings, has %d", def.Bindings())
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		runtime.GC()
		select {
		case <-collected:
			runtime.KeepAlive(def)
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("bound task outlived its host")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
