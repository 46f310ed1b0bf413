package realtime

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"pulse/cmd/internal/metrics"
	v1 "pulse/shared/contracts/realtime/v1"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestRegistry(t *testing.T) (*Registry, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(log, metrics.NewCollector(reg)), reg
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
		return m.GetCounter().GetValue()
	}
	return 0
}

func TestRegistry_RegisterReplacesEntry(t *testing.T) {
	r, reg := newTestRegistry(t)

	a := NewChannel("a", "u1", 4)
	b := NewChannel("b", "u1", 4)

	if prev := r.Register("u1", a); prev != nil {
		t.Fatalf("first register returned %v", prev.ID)
	}
	if prev := r.Register("u1", b); prev != a {
		t.Fatalf("expected a to be superseded")
	}

	got, ok := r.Lookup("u1")
	if !ok || got != b {
		t.Fatalf("lookup returned %v, want b", got)
	}
	if a.Closed() {
		t.Fatalf("superseded channel must not be closed by the registry")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d", r.Len())
	}
	if v := gaugeValue(t, reg, "pulse_channels_open"); v != 1 {
		t.Fatalf("channels_open = %v", v)
	}
	if v := gaugeValue(t, reg, "pulse_channels_superseded_total"); v != 1 {
		t.Fatalf("superseded = %v", v)
	}
}

func TestRegistry_StaleUnregisterKeepsNewerChannel(t *testing.T) {
	r, reg := newTestRegistry(t)

	a := NewChannel("a", "u1", 4)
	b := NewChannel("b", "u1", 4)
	r.Register("u1", a)
	r.Register("u1", b)

	if r.Unregister("u1", a) {
		t.Fatalf("stale unregister removed the entry")
	}
	if got, ok := r.Lookup("u1"); !ok || got != b {
		t.Fatalf("b was evicted by a's close")
	}

	if !r.Unregister("u1", b) {
		t.Fatalf("unregister of current channel failed")
	}
	if _, ok := r.Lookup("u1"); ok {
		t.Fatalf("entry still present")
	}
	if r.Unregister("u1", b) {
		t.Fatalf("second unregister reported removal")
	}
	if v := gaugeValue(t, reg, "pulse_channels_open"); v != 0 {
		t.Fatalf("channels_open = %v", v)
	}
}

func TestRegistry_RegisterSameChannelTwice(t *testing.T) {
	r, reg := newTestRegistry(t)
	a := NewChannel("a", "u1", 4)

	r.Register("u1", a)
	if prev := r.Register("u1", a); prev != nil {
		t.Fatalf("re-register returned %v", prev.ID)
	}
	if v := gaugeValue(t, reg, "pulse_channels_superseded_total"); v != 0 {
		t.Fatalf("superseded = %v", v)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := fmt.Sprintf("u%d", i%5)
			ch := NewChannel(fmt.Sprintf("c%d", i), uid, 1)
			r.Register(uid, ch)
			if got, ok := r.Lookup(uid); ok {
				_ = got.Push(v1.Envelope{V: v1.Version, Type: v1.TypePong})
			}
			r.Unregister(uid, ch)
		}(i)
	}
	wg.Wait()

	if r.Len() > 5 {
		t.Fatalf("len = %d, want at most one entry per user", r.Len())
	}
}

func TestChannel_Push(t *testing.T) {
	ch := NewChannel("c", "u", 1)
	env := v1.Envelope{V: v1.Version, Type: v1.TypePong}

	if err := ch.Push(env); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := ch.Push(env); err != ErrBackpressure {
		t.Fatalf("full queue err = %v", err)
	}

	<-ch.Outbound()
	ch.Close()
	ch.Close()
	if err := ch.Push(env); err != ErrChannelClosed {
		t.Fatalf("closed err = %v", err)
	}
}
