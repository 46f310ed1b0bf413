package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func seed(t *testing.T, s Store, recipient string, n int) []Event {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Event, 0, n)
	for i := range n {
		e, err := s.Create(context.Background(), Event{
			ID:          fmt.Sprintf("%s-%02d", recipient, i),
			RecipientID: recipient,
			Type:        TypeSystem,
			Message:     fmt.Sprintf("event %d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func eventIDs(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestMemoryStore_ListOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "u1", 4)
	seed(t, s, "u2", 1)
	ctx := context.Background()

	got, _ := s.List(ctx, "u1", ListOptions{})
	if fmt.Sprint(eventIDs(got)) != "[u1-00 u1-01 u1-02 u1-03]" {
		t.Fatalf("oldest first = %v", eventIDs(got))
	}

	got, _ = s.List(ctx, "u1", ListOptions{Order: NewestFirst, Limit: 2})
	if fmt.Sprint(eventIDs(got)) != "[u1-03 u1-02]" {
		t.Fatalf("newest first = %v", eventIDs(got))
	}

	got, _ = s.List(ctx, "nobody", ListOptions{})
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %v", eventIDs(got))
	}
}

func TestMemoryStore_ReadFlags(t *testing.T) {
	s := NewMemoryStore()
	events := seed(t, s, "u1", 3)
	ctx := context.Background()

	if n, _ := s.UnreadCount(ctx, "u1"); n != 3 {
		t.Fatalf("unread = %d", n)
	}
	e, err := s.MarkRead(ctx, "u1", events[1].ID)
	if err != nil || !e.Read {
		t.Fatalf("MarkRead = %+v, %v", e, err)
	}
	if _, err := s.MarkRead(ctx, "u2", events[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign MarkRead err = %v", err)
	}

	unread, _ := s.List(ctx, "u1", ListOptions{UnreadOnly: true})
	if fmt.Sprint(eventIDs(unread)) != "[u1-00 u1-02]" {
		t.Fatalf("unread list = %v", eventIDs(unread))
	}

	if n, _ := s.MarkAllRead(ctx, "u1"); n != 2 {
		t.Fatalf("MarkAllRead = %d", n)
	}
	if n, _ := s.UnreadCount(ctx, "u1"); n != 0 {
		t.Fatalf("unread after mark all = %d", n)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	events := seed(t, s, "u1", 3)
	seed(t, s, "u2", 2)
	ctx := context.Background()

	if err := s.Delete(ctx, "u2", events[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete err = %v", err)
	}
	if err := s.Delete(ctx, "u1", events[0].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "u1", events[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}

	if n, _ := s.DeleteAll(ctx, "u1"); n != 2 {
		t.Fatalf("DeleteAll = %d", n)
	}
	if got, _ := s.List(ctx, "u2", ListOptions{}); len(got) != 2 {
		t.Fatalf("DeleteAll touched another recipient")
	}
}

func TestListOptionsLimit(t *testing.T) {
	tests := map[int]int{0: DefaultListLimit, -1: DefaultListLimit, 10: 10, MaxListLimit + 1: MaxListLimit}
	for in, want := range tests {
		if got := (ListOptions{Limit: in}).limit(); got != want {
			t.Errorf("limit(%d) = %d, want %d", in, got, want)
		}
	}
}
