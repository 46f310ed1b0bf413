package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"pulse/cmd/identity/ids"
	"pulse/cmd/internal/pgtest"
)

// Integration tests are enabled when PULSE_DATABASE_URL is set.

func TestPostgresStore_Lifecycle(t *testing.T) {
	pool := pgtest.Open(t)
	recipient := pgtest.CreateUser(t, pool)
	sender := pgtest.CreateUser(t, pool)
	other := pgtest.CreateUser(t, pool)

	store, err := NewPostgresStore(pool, "")
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	var created []Event
	for i, typ := range []Type{TypeLike, TypeComment, TypeSystem} {
		id, err := ids.NewULID(now)
		if err != nil {
			t.Fatalf("NewULID: %v", err)
		}
		e := Event{ID: id, RecipientID: recipient, Type: typ, Message: string(typ), CreatedAt: now.Add(time.Duration(i) * time.Millisecond)}
		if typ != TypeSystem {
			e.SenderID = sender
			e.Link = "/posts/x"
		}
		if _, err := store.Create(ctx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
		created = append(created, e)
	}

	list, err := store.List(ctx, recipient, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].ID != created[0].ID || list[2].ID != created[2].ID {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[2].SenderID != "" || list[2].Link != "" {
		t.Fatalf("SYSTEM event gained sender/link: %+v", list[2])
	}

	newest, _ := store.List(ctx, recipient, ListOptions{Order: NewestFirst, Limit: 1})
	if len(newest) != 1 || newest[0].ID != created[2].ID {
		t.Fatalf("newest = %+v", newest)
	}

	if _, err := store.MarkRead(ctx, other, created[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign MarkRead err = %v", err)
	}
	read, err := store.MarkRead(ctx, recipient, created[0].ID)
	if err != nil || !read.Read {
		t.Fatalf("MarkRead = %+v, %v", read, err)
	}
	if n, _ := store.UnreadCount(ctx, recipient); n != 2 {
		t.Fatalf("unread = %d", n)
	}
	if n, _ := store.MarkAllRead(ctx, recipient); n != 2 {
		t.Fatalf("MarkAllRead = %d", n)
	}

	if err := store.Delete(ctx, other, created[1].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign Delete err = %v", err)
	}
	if err := store.Delete(ctx, recipient, created[1].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := store.DeleteAll(ctx, recipient); n != 2 {
		t.Fatalf("DeleteAll = %d", n)
	}
}

func TestPostgresStore_RejectsUnknownTypeAtSchema(t *testing.T) {
	pool := pgtest.Open(t)
	recipient := pgtest.CreateUser(t, pool)
	store, _ := NewPostgresStore(pool, "pulse")

	id, _ := ids.NewULID(time.Now())
	_, err := store.Create(context.Background(), Event{ID: id, RecipientID: recipient, Type: "POKE", Message: "x", CreatedAt: time.Now()})
	if err == nil {
		t.Fatalf("expected check constraint violation")
	}
}
