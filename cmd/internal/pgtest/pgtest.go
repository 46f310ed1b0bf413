// Package pgtest opens a migrated Postgres pool for integration tests.
//
// Tests using it are opt-in: they are skipped unless PULSE_DATABASE_URL is set.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"pulse/cmd/identity/ids"
	"pulse/cmd/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnvDatabaseURL names the variable that enables integration tests.
const EnvDatabaseURL = "PULSE_DATABASE_URL"

// Open returns a pool with every migration applied, closed on test cleanup.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if dbURL == "" {
		t.Skip(EnvDatabaseURL + " is not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		if os.Getenv("CI") == "" {
			t.Skipf("postgres unreachable: %v", err)
		}
		t.Fatalf("ping: %v", err)
	}
	if err := migrations.Up(ctx, pool); err != nil {
		t.Fatalf("migrations.Up: %v", err)
	}
	return pool
}

// CreateUser inserts a throwaway user row and deletes it (cascading) on cleanup.
func CreateUser(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	username := strings.ToLower(fmt.Sprintf("t_%s", id[len(id)-12:]))

	if _, err := pool.Exec(ctx, `
		INSERT INTO pulse.users (id, username, username_norm, display_name, created_at)
		VALUES ($1, $2, $2, $3, $4)
	`, id, username, "Test "+username, now); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DELETE FROM pulse.users WHERE id = $1`, id)
	})
	return id
}
