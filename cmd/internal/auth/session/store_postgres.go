package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (pulse.sessions).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectSessionColumns = `
	SELECT
		id, user_id, refresh_token_hash, remember,
		created_at, last_used_at, expires_at, revoked_at,
		replaced_by_session_id
	FROM pulse.sessions
`

func scanRow(r pgx.Row) (Row, error) {
	var row Row
	err := r.Scan(
		&row.ID,
		&row.UserID,
		&row.RefreshTokenHash,
		&row.Remember,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.ReplacedBySessionID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, in NewSession) error {
	return insertSession(ctx, s.pool, in)
}

func insertSession(ctx context.Context, q queryer, in NewSession) error {
	_, err := q.Exec(ctx, `
		INSERT INTO pulse.sessions (
			id, user_id, refresh_token_hash, remember,
			created_at, last_used_at, expires_at,
			user_agent, ip
		) VALUES (
			$1, $2, $3, $4,
			$5, $5, $6,
			$7, $8
		)
	`, in.ID, in.UserID, in.RefreshHash, in.Device.Remember,
		in.CreatedAt, in.ExpiresAt,
		nullIfEmpty(in.Device.UserAgent), nullIfEmptyIP(in.Device))
	return err
}

// GetByID loads a session row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx, selectSessionColumns+`WHERE id = $1`, sessionID))
}

// Rotate locks the session owning refreshHash and replaces it in one transaction.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, refreshHash string, next func(old Row) (NewSession, error)) (Row, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Row{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := scanRow(tx.QueryRow(ctx, selectSessionColumns+`WHERE refresh_token_hash = $1 FOR UPDATE`, refreshHash))
	if err != nil {
		return Row{}, err
	}

	if !old.ExpiresAt.After(now) {
		return Row{}, ErrSessionExpired
	}

	if old.ReplacedBySessionID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE pulse.sessions
			SET revoked_at = COALESCE(revoked_at, $2),
			    revocation_reason = COALESCE(revocation_reason, 'reuse_detected')
			WHERE user_id = $1
		`, old.UserID, now); err != nil {
			return Row{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Row{}, err
		}
		return Row{}, ErrRefreshReuseDetected
	}

	if old.RevokedAt != nil {
		return Row{}, ErrSessionRevoked
	}

	in, err := next(old)
	if err != nil {
		return Row{}, err
	}
	if err := insertSession(ctx, tx, in); err != nil {
		return Row{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE pulse.sessions
		SET
			last_used_at = $2,
			revoked_at = $2,
			replaced_by_session_id = $3,
			revocation_reason = 'rotation'
		WHERE id = $1
	`, old.ID, now, in.ID); err != nil {
		return Row{}, err
	}

	row, err := scanRow(tx.QueryRow(ctx, selectSessionColumns+`WHERE id = $1`, in.ID))
	if err != nil {
		return Row{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Row{}, err
	}
	return row, nil
}

// Touch updates last_used_at for a session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulse.sessions
		SET last_used_at = $2
		WHERE id = $1
	`, sessionID, now)
	return err
}

// Revoke revokes a single session (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulse.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1
	`, sessionID, now, reason)
	return err
}

// RevokeAll revokes all sessions for a user (idempotent).
func (s *PostgresStore) RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulse.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1
	`, userID, now, reason)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfEmptyIP(dev DeviceContext) any {
	if dev.IP == nil {
		return nil
	}
	return dev.IP
}

var _ Store = (*PostgresStore)(nil)
