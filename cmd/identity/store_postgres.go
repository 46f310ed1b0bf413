package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"pulse/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "pulse").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "pulse",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser inserts the user and its credentials in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	u, err := prepareCreate(op, in)
	if err != nil {
		return User{}, err
	}
	u.ID, err = ids.NewULID(u.CreatedAt)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.ident("users")+` (
		     id, username, username_norm, email, email_norm, display_name, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.UsernameNorm, u.Email, u.EmailNorm, u.DisplayName, u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.ident("user_credentials")+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		u.ID, in.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

const userColumns = `u.id, u.username, u.username_norm, u.email, u.email_norm, u.display_name, u.created_at`

func scanUser(row pgx.Row, extra ...any) (User, error) {
	var u User
	dest := append([]any{
		&u.ID, &u.Username, &u.UsernameNorm, &u.Email, &u.EmailNorm, &u.DisplayName, &u.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUser loads a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUser"

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.ident("users")+` u WHERE u.id = $1`,
		userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

// GetByLogin resolves a username or email and returns the stored password hash.
func (s *PostgresStore) GetByLogin(ctx context.Context, login string) (User, string, error) {
	const op = "identity.GetByLogin"

	var hash string
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, c.password_hash
		   FROM `+s.ident("users")+` u
		   JOIN `+s.ident("user_credentials")+` c ON c.user_id = u.id
		  WHERE u.username_norm = $1 OR u.email_norm = $2
		  LIMIT 1`,
		NormalizeUsername(login), NormalizeEmail(login),
	), &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, "", err
	}
	return u, hash, nil
}

// ident safely quotes a schema-qualified identifier: "schema"."name".
func (s *PostgresStore) ident(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_username_norm", strings.Contains(c, "username"):
		return "username", true
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}

var _ Store = (*PostgresStore)(nil)
