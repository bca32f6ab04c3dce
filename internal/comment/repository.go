package comment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postboard/internal/auth"
)

var ErrCommentNotFound = errors.New("comment not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const commentColumns = `c.id, c.content, c.owner_id, c.post_id, c.created_at, c.updated_at, ` + auth.ProfileColumns

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var (
		c        Comment
		fullName sql.NullString
	)
	targets := append([]any{&c.ID, &c.Content, &c.OwnerID, &c.PostID, &c.CreatedAt, &c.UpdatedAt}, c.Owner.ScanTargets(&fullName)...)
	if err := row.Scan(targets...); err != nil {
		return Comment{}, err
	}
	c.Owner.Normalize(fullName)
	return c, nil
}

// ListByPost returns the comments of a post, oldest first.
func (r *Repository) ListByPost(ctx context.Context, postID int64) ([]Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.owner_id
		WHERE c.post_id = $1
		ORDER BY c.created_at ASC, c.id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	return comments, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Comment, error) {
	c, err := scanComment(r.db.QueryRowContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN users u ON u.id = c.owner_id
		WHERE c.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Comment{}, ErrCommentNotFound
		}
		return Comment{}, fmt.Errorf("query comment: %w", err)
	}

	return c, nil
}

func (r *Repository) Create(ctx context.Context, postID int64, ownerID, content string) (Comment, error) {
	now := time.Now().UTC()
	c, err := scanComment(r.db.QueryRowContext(ctx, `
		WITH c AS (
			INSERT INTO comments (content, owner_id, post_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING id, content, owner_id, post_id, created_at, updated_at
		)
		SELECT `+commentColumns+`
		FROM c
		JOIN users u ON u.id = c.owner_id
	`, content, ownerID, postID, now))
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	return c, nil
}

func (r *Repository) Update(ctx context.Context, id int64, content string) (Comment, error) {
	c, err := scanComment(r.db.QueryRowContext(ctx, `
		WITH c AS (
			UPDATE comments
			SET content = $2, updated_at = $3
			WHERE id = $1
			RETURNING id, content, owner_id, post_id, created_at, updated_at
		)
		SELECT `+commentColumns+`
		FROM c
		JOIN users u ON u.id = c.owner_id
	`, id, content, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Comment{}, ErrCommentNotFound
		}
		return Comment{}, fmt.Errorf("update comment: %w", err)
	}

	return c, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrCommentNotFound
	}

	return nil
}
