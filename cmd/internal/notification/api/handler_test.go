package notifyapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulse/cmd/internal/auth/session"
	"pulse/cmd/internal/notification"
	"pulse/cmd/internal/realtime"
)

type tokenAuth map[string]string

func (a tokenAuth) ValidateAccessToken(_ context.Context, token string, _ time.Time) (session.AccessClaims, error) {
	uid, ok := a[token]
	if !ok {
		return session.AccessClaims{}, session.ErrInvalidToken
	}
	return session.AccessClaims{UserID: uid}, nil
}

type fixture struct {
	srv      *httptest.Server
	store    *notification.MemoryStore
	registry *realtime.Registry
	disp     *notification.Dispatcher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := notification.NewMemoryStore()
	registry := realtime.NewRegistry(log, nil)
	disp := notification.NewDispatcher(store, registry, log, nil)

	mux := http.NewServeMux()
	NewHandler(log, store, disp, tokenAuth{"tok-1": "u1", "tok-2": "u2"}).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fixture{srv: srv, store: store, registry: registry, disp: disp}
}

func (f fixture) do(t *testing.T, method, path, token string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func (f fixture) dispatch(t *testing.T, recipient, msg string) notification.Event {
	t.Helper()
	e, err := f.disp.Dispatch(context.Background(), notification.Input{
		RecipientID: recipient, SenderID: "u9", Type: notification.TypeFollow, Message: msg,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	return e
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

func TestRequiresBearerToken(t *testing.T) {
	f := newFixture(t)
	for _, tok := range []string{"", "forged"} {
		status, _ := f.do(t, http.MethodGet, "/notifications", tok)
		if status != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d", tok, status)
		}
	}
}

func TestListNewestFirstByDefault(t *testing.T) {
	f := newFixture(t)
	first := f.dispatch(t, "u1", "first")
	second := f.dispatch(t, "u1", "second")
	f.dispatch(t, "u2", "other user")

	status, body := f.do(t, http.MethodGet, "/notifications", "tok-1")
	if status != http.StatusOK {
		t.Fatalf("status = %d body=%s", status, body)
	}
	got := decode[listResponse](t, body).Notifications
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("list = %+v", got)
	}

	_, body = f.do(t, http.MethodGet, "/notifications?order=oldest&limit=1", "tok-1")
	got = decode[listResponse](t, body).Notifications
	if len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("oldest list = %+v", got)
	}

	status, _ = f.do(t, http.MethodGet, "/notifications?order=sideways", "tok-1")
	if status != http.StatusBadRequest {
		t.Fatalf("bad order status = %d", status)
	}
}

func TestReadFlow(t *testing.T) {
	f := newFixture(t)
	a := f.dispatch(t, "u1", "a")
	f.dispatch(t, "u1", "b")
	f.dispatch(t, "u1", "c")

	_, body := f.do(t, http.MethodGet, "/notifications/unread-count", "tok-1")
	if n := decode[countResponse](t, body).Count; n != 3 {
		t.Fatalf("unread = %d", n)
	}

	status, _ := f.do(t, http.MethodPatch, "/notifications/"+a.ID+"/read", "tok-2")
	if status != http.StatusNotFound {
		t.Fatalf("foreign mark read status = %d", status)
	}

	status, body = f.do(t, http.MethodPatch, "/notifications/"+a.ID+"/read", "tok-1")
	if status != http.StatusOK || !decode[notificationResponse](t, body).Notification.Read {
		t.Fatalf("mark read status = %d body=%s", status, body)
	}

	_, body = f.do(t, http.MethodPatch, "/notifications/mark-all-read", "tok-1")
	if n := decode[updatedResponse](t, body).Updated; n != 2 {
		t.Fatalf("mark all updated = %d", n)
	}

	_, body = f.do(t, http.MethodGet, "/notifications/unread-count", "tok-1")
	if n := decode[countResponse](t, body).Count; n != 0 {
		t.Fatalf("unread after mark all = %d", n)
	}
}

func TestDeleteAndClear(t *testing.T) {
	f := newFixture(t)
	a := f.dispatch(t, "u1", "a")
	f.dispatch(t, "u1", "b")
	f.dispatch(t, "u2", "keep")

	if status, _ := f.do(t, http.MethodDelete, "/notifications/"+a.ID, "tok-1"); status != http.StatusNoContent {
		t.Fatalf("delete status = %d", status)
	}
	if status, _ := f.do(t, http.MethodDelete, "/notifications/"+a.ID, "tok-1"); status != http.StatusNotFound {
		t.Fatalf("second delete status = %d", status)
	}

	_, body := f.do(t, http.MethodDelete, "/notifications", "tok-1")
	if n := decode[deletedResponse](t, body).Deleted; n != 1 {
		t.Fatalf("cleared = %d", n)
	}
	if n, _ := f.store.UnreadCount(context.Background(), "u2"); n != 1 {
		t.Fatalf("clear-all touched another user")
	}
}

func TestSendTestNotification(t *testing.T) {
	f := newFixture(t)
	ch := realtime.NewChannel("c1", "u1", 4)
	f.registry.Register("u1", ch)

	status, body := f.do(t, http.MethodPost, "/notifications/test", "tok-1")
	if status != http.StatusCreated {
		t.Fatalf("status = %d body=%s", status, body)
	}
	n := decode[notificationResponse](t, body).Notification
	if n.Type != "TEST" || n.RecipientID != "u1" || n.Message != testMessage {
		t.Fatalf("notification = %+v", n)
	}

	select {
	case env := <-ch.Outbound():
		if env.Type != "notification" {
			t.Fatalf("pushed type = %q", env.Type)
		}
	default:
		t.Fatalf("test notification was not pushed")
	}
}
