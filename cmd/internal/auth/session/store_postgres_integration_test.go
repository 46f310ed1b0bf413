package session

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"pulse/cmd/internal/pgtest"

	paseto "aidanwoods.dev/go-paseto"
)

// Integration tests are enabled when PULSE_DATABASE_URL is set.

func newPostgresService(t *testing.T) (*Service, *PostgresStore, string) {
	t.Helper()

	pool := pgtest.Open(t)
	userID := pgtest.CreateUser(t, pool)

	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	tokens, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}

	store := NewPostgresStore(pool)
	return NewService(cfg, store, tokens), store, userID
}

func TestPostgresSession_IssueAndRefresh(t *testing.T) {
	svc, store, userID := newPostgresService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	dev := DeviceContext{Remember: true, UserAgent: "pulse-test/1.0", IP: net.ParseIP("127.0.0.1")}

	issued1, err := svc.IssueSession(ctx, now, userID, dev)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	claims, err := svc.ValidateAccessToken(ctx, issued1.AccessToken, now.Add(time.Second))
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected userID=%q, got %q", userID, claims.UserID)
	}

	issued2, err := svc.Refresh(ctx, now.Add(2*time.Second), issued1.RefreshToken, DeviceContext{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if issued2.SessionID == issued1.SessionID {
		t.Fatalf("expected a new session id")
	}

	oldRow, err := store.GetByID(ctx, issued1.SessionID)
	if err != nil {
		t.Fatalf("GetByID(old): %v", err)
	}
	if oldRow.ReplacedBySessionID == nil || *oldRow.ReplacedBySessionID != issued2.SessionID {
		t.Fatalf("expected old session replaced_by=%q, got %v", issued2.SessionID, oldRow.ReplacedBySessionID)
	}

	newRow, err := store.GetByID(ctx, issued2.SessionID)
	if err != nil {
		t.Fatalf("GetByID(new): %v", err)
	}
	if !newRow.Remember || !newRow.Active(now) {
		t.Fatalf("expected remembered active replacement, got %+v", newRow)
	}
}

func TestPostgresSession_ReuseDetected_RevokesAll(t *testing.T) {
	svc, store, userID := newPostgresService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	issued1, err := svc.IssueSession(ctx, now, userID, DeviceContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	issued2, err := svc.Refresh(ctx, now, issued1.RefreshToken, DeviceContext{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := svc.Refresh(ctx, now, issued1.RefreshToken, DeviceContext{}); !errors.Is(err, ErrRefreshReuseDetected) {
		t.Fatalf("expected ErrRefreshReuseDetected, got %v", err)
	}

	row, err := store.GetByID(ctx, issued2.SessionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.RevokedAt == nil {
		t.Fatalf("expected replacement session revoked after reuse")
	}
}

func TestPostgresSession_TouchAndRevokeAll(t *testing.T) {
	svc, store, userID := newPostgresService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	issued, err := svc.IssueSession(ctx, now, userID, DeviceContext{})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	next := now.Add(30 * time.Second)
	if err := svc.TouchSession(ctx, next, issued.SessionID); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	row, err := store.GetByID(ctx, issued.SessionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	want := next.Truncate(time.Microsecond)
	if row.LastUsedAt == nil || !row.LastUsedAt.UTC().Equal(want) {
		t.Fatalf("expected last_used_at=%v, got %v", want, row.LastUsedAt)
	}

	if err := svc.RevokeAll(ctx, now, userID); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, issued.AccessToken, now); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}
