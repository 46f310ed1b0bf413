package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists notifications in <schema>.notifications.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore constructs a store over pool. schema defaults to "pulse".
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("notification: nil pool")
	}
	if schema == "" {
		schema = "pulse"
	}
	return &PostgresStore{
		pool:  pool,
		table: pgx.Identifier{schema, "notifications"}.Sanitize(),
	}, nil
}

const eventColumns = `id, recipient_id, COALESCE(sender_id, ''), type, message, COALESCE(link, ''), is_read, created_at`

func scanEvent(row pgx.CollectableRow) (Event, error) {
	var e Event
	var typ string
	if err := row.Scan(&e.ID, &e.RecipientID, &e.SenderID, &typ, &e.Message, &e.Link, &e.Read, &e.CreatedAt); err != nil {
		return Event{}, err
	}
	e.Type = Type(typ)
	return e, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PostgresStore) Create(ctx context.Context, e Event) (Event, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (id, recipient_id, sender_id, type, message, link, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.RecipientID, nullIfEmpty(e.SenderID), string(e.Type), e.Message, nullIfEmpty(e.Link), e.Read, e.CreatedAt,
	)
	if err != nil {
		return Event{}, fmt.Errorf("notification: insert: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) List(ctx context.Context, recipientID string, opts ListOptions) ([]Event, error) {
	order := "ASC"
	if opts.Order == NewestFirst {
		order = "DESC"
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM `+s.table+`
		  WHERE recipient_id = $1 AND (NOT $2 OR NOT is_read)
		  ORDER BY seq `+order+`
		  LIMIT $3`,
		recipientID, opts.UnreadOnly, opts.limit(),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanEvent)
}

func (s *PostgresStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+s.table+` WHERE recipient_id = $1 AND NOT is_read`,
		recipientID,
	).Scan(&n)
	return n, err
}

func (s *PostgresStore) MarkRead(ctx context.Context, recipientID, id string) (Event, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE `+s.table+` SET is_read = TRUE
		  WHERE id = $1 AND recipient_id = $2
		  RETURNING `+eventColumns,
		id, recipientID,
	)
	if err != nil {
		return Event{}, err
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEvent)
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return e, err
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table+` SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`,
		recipientID,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Delete(ctx context.Context, recipientID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table+` WHERE id = $1 AND recipient_id = $2`,
		id, recipientID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context, recipientID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE recipient_id = $1`, recipientID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

var _ Store = (*PostgresStore)(nil)
