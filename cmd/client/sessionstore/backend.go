package sessionstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteBackend keeps a single persistent session row in a local SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dsn and applies migrations.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("sessionstore: migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("sessionstore: migrate up: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

func (b *SQLiteBackend) Load(ctx context.Context) (Session, bool, error) {
	var s Session
	var accessExp, refExp int64
	err := b.db.QueryRowContext(ctx, `
		SELECT user_id, username, display_name, session_id,
		       access_token, access_expires_at, refresh_token, refresh_expires_at
		FROM session WHERE id = 1`,
	).Scan(
		&s.Identity.UserID, &s.Identity.Username, &s.Identity.DisplayName, &s.SessionID,
		&s.AccessToken, &accessExp, &s.RefreshToken, &refExp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	s.AccessExpiresAt = fromUnixMilli(accessExp)
	s.RefreshExpiresAt = fromUnixMilli(refExp)
	return s, true, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, s Session) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO session (id, user_id, username, display_name, session_id,
		                     access_token, access_expires_at, refresh_token, refresh_expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			display_name = excluded.display_name,
			session_id = excluded.session_id,
			access_token = excluded.access_token,
			access_expires_at = excluded.access_expires_at,
			refresh_token = excluded.refresh_token,
			refresh_expires_at = excluded.refresh_expires_at,
			updated_at = excluded.updated_at`,
		s.Identity.UserID, s.Identity.Username, s.Identity.DisplayName, s.SessionID,
		s.AccessToken, toUnixMilli(s.AccessExpiresAt), s.RefreshToken, toUnixMilli(s.RefreshExpiresAt),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func toUnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// MemoryBackend is a Backend that lives as long as the value does.
type MemoryBackend struct {
	mu    sync.Mutex
	s     Session
	ok    bool
	saves int
}

func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Load(context.Context) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, m.ok, nil
}

func (m *MemoryBackend) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s, m.ok = s, true
	m.saves++
	return nil
}

func (m *MemoryBackend) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s, m.ok = Session{}, false
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
