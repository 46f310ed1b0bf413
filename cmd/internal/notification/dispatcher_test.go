package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"pulse/cmd/internal/metrics"
	"pulse/cmd/internal/realtime"
	v1 "pulse/shared/contracts/realtime/v1"

	"github.com/prometheus/client_golang/prometheus"
)

type failingStore struct {
	*MemoryStore
	err error
}

func (f failingStore) Create(context.Context, Event) (Event, error) { return Event{}, f.err }

type dispatchFixture struct {
	store      *MemoryStore
	registry   *realtime.Registry
	dispatcher *Dispatcher
	reg        *prometheus.Registry
}

func newDispatchFixture(t *testing.T) dispatchFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)

	store := NewMemoryStore()
	registry := realtime.NewRegistry(log, m)
	d := NewDispatcher(store, registry, log, m)
	d.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return dispatchFixture{store: store, registry: registry, dispatcher: d, reg: reg}
}

func (f dispatchFixture) pushCount(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := f.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "pulse_notification_pushes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetLabel()[0].GetValue() == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func drain(ch *realtime.Channel) []v1.Envelope {
	var out []v1.Envelope
	for {
		select {
		case env := <-ch.Outbound():
			out = append(out, env)
		default:
			return out
		}
	}
}

func likeInput(recipient string) Input {
	return Input{RecipientID: recipient, SenderID: "u2", Type: TypeLike, Message: "bob liked your post", Link: "/posts/p1"}
}

func TestDispatch_AbsentRecipientStillPersists(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	e, err := f.dispatcher.Dispatch(ctx, likeInput("u1"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if e.ID == "" || e.Read || !e.CreatedAt.Equal(f.dispatcher.now()) {
		t.Fatalf("unexpected event: %+v", e)
	}

	list, _ := f.store.List(ctx, "u1", ListOptions{})
	if len(list) != 1 || list[0].ID != e.ID {
		t.Fatalf("event not persisted: %+v", list)
	}
	if f.pushCount(t, metrics.PushAbsent) != 1 {
		t.Fatalf("absent push not recorded")
	}
}

func TestDispatch_OpenChannelGetsExactlyOnePush(t *testing.T) {
	f := newDispatchFixture(t)
	ch := realtime.NewChannel("c1", "u1", 8)
	f.registry.Register("u1", ch)

	e, err := f.dispatcher.Dispatch(context.Background(), likeInput("u1"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got := drain(ch)
	if len(got) != 1 {
		t.Fatalf("pushes = %d, want 1", len(got))
	}
	if got[0].Type != v1.TypeNotification {
		t.Fatalf("envelope type = %q", got[0].Type)
	}
	var p v1.NotificationPayload
	if err := json.Unmarshal(got[0].Payload, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != e.ID || p.Type != "LIKE" || p.Link != "/posts/p1" || p.SenderID != "u2" {
		t.Fatalf("payload = %+v", p)
	}
	if f.pushCount(t, metrics.PushDelivered) != 1 {
		t.Fatalf("delivered push not recorded")
	}
}

func TestDispatch_PushFailuresAreAbsorbed(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	closed := realtime.NewChannel("c1", "u1", 8)
	f.registry.Register("u1", closed)
	closed.Close()
	if _, err := f.dispatcher.Dispatch(ctx, likeInput("u1")); err != nil {
		t.Fatalf("closed channel surfaced error: %v", err)
	}

	full := realtime.NewChannel("c2", "u3", 1)
	f.registry.Register("u3", full)
	_ = full.Push(v1.Envelope{V: v1.Version, Type: v1.TypePong})
	if _, err := f.dispatcher.Dispatch(ctx, likeInput("u3")); err != nil {
		t.Fatalf("full channel surfaced error: %v", err)
	}

	if n, _ := f.store.UnreadCount(ctx, "u1"); n != 1 {
		t.Fatalf("closed-channel event not persisted")
	}
	if n, _ := f.store.UnreadCount(ctx, "u3"); n != 1 {
		t.Fatalf("full-channel event not persisted")
	}
	if f.pushCount(t, metrics.PushDropped) != 2 {
		t.Fatalf("dropped pushes not recorded")
	}
}

func TestDispatch_PersistFailureSkipsPush(t *testing.T) {
	f := newDispatchFixture(t)
	boom := errors.New("disk full")
	f.dispatcher.store = failingStore{MemoryStore: f.store, err: boom}

	ch := realtime.NewChannel("c1", "u1", 8)
	f.registry.Register("u1", ch)

	if _, err := f.dispatcher.Dispatch(context.Background(), likeInput("u1")); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped persistence error", err)
	}
	if got := drain(ch); len(got) != 0 {
		t.Fatalf("pushed %d envelopes without persisting", len(got))
	}
}

func TestDispatch_RejectsInvalidInput(t *testing.T) {
	f := newDispatchFixture(t)
	in := likeInput("u1")
	in.Type = "POKE"

	if _, err := f.dispatcher.Dispatch(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	if n, _ := f.store.UnreadCount(context.Background(), "u1"); n != 0 {
		t.Fatalf("invalid event persisted")
	}
}

func TestDispatch_ConnectThenDisconnect(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	ch := realtime.NewChannel("c1", "u1", 8)
	f.registry.Register("u1", ch)

	like, err := f.dispatcher.Dispatch(ctx, likeInput("u1"))
	if err != nil {
		t.Fatalf("Dispatch LIKE: %v", err)
	}
	if got := drain(ch); len(got) != 1 {
		t.Fatalf("LIKE pushes = %d", len(got))
	}

	f.registry.Unregister("u1", ch)
	ch.Close()

	comment, err := f.dispatcher.Dispatch(ctx, Input{RecipientID: "u1", SenderID: "u2", Type: TypeComment, Message: "bob commented"})
	if err != nil {
		t.Fatalf("Dispatch COMMENT: %v", err)
	}
	if got := drain(ch); len(got) != 0 {
		t.Fatalf("disconnected channel received %d envelopes", len(got))
	}

	list, _ := f.store.List(ctx, "u1", ListOptions{})
	if len(list) != 2 || list[0].ID != like.ID || list[1].ID != comment.ID {
		t.Fatalf("list = %+v", list)
	}
}
