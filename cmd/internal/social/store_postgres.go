package social

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over pulse.posts and pulse.post_likes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore. The caller owns pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreatePost(ctx context.Context, p Post) (Post, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pulse.posts (id, author_id, body, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.AuthorID, p.Body, p.CreatedAt,
	)
	if err != nil {
		return Post{}, err
	}
	return p, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (Post, error) {
	var p Post
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.author_id, p.body, p.created_at,
		       (SELECT count(*) FROM pulse.post_likes l WHERE l.post_id = p.id)
		  FROM pulse.posts p
		 WHERE p.id = $1
	`, id).Scan(&p.ID, &p.AuthorID, &p.Body, &p.CreatedAt, &p.Likes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrPostNotFound
	}
	return p, err
}

func (s *PostgresStore) ToggleLike(ctx context.Context, postID, userID string, now time.Time) (LikeResult, error) {
	res := LikeResult{PostID: postID}

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		// Lock the post row so concurrent toggles on it serialize.
		err := tx.QueryRow(ctx, `SELECT author_id FROM pulse.posts WHERE id = $1 FOR UPDATE`, postID).Scan(&res.AuthorID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPostNotFound
		}
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM pulse.post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if _, err := tx.Exec(ctx,
				`INSERT INTO pulse.post_likes (post_id, user_id, created_at) VALUES ($1, $2, $3)`,
				postID, userID, now,
			); err != nil {
				return err
			}
			res.Liked = true
		}

		return tx.QueryRow(ctx, `SELECT count(*) FROM pulse.post_likes WHERE post_id = $1`, postID).Scan(&res.Likes)
	})
	if err != nil {
		return LikeResult{}, err
	}
	return res, nil
}

var _ Store = (*PostgresStore)(nil)
