package post

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postboard/internal/auth"
	"postboard/internal/db"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrLikeConflict = errors.New("concurrent like for the same post")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const postColumns = `p.id, p.title, p.content, p.image_url, p.video_url, p.owner_id, p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id) AS likes_count,
	EXISTS (SELECT 1 FROM likes l WHERE l.post_id = p.id AND l.user_id = $1) AS user_has_liked`

func postTargets(p *Post, content, imageURL, videoURL *sql.NullString) []any {
	return []any{&p.ID, &p.Title, content, imageURL, videoURL, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt, &p.LikesCount, &p.UserHasLiked}
}

func fromNull(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var (
		p                           Post
		content, imageURL, videoURL sql.NullString
	)
	if err := row.Scan(postTargets(&p, &content, &imageURL, &videoURL)...); err != nil {
		return Post{}, err
	}
	p.Content, p.ImageURL, p.VideoURL = fromNull(content), fromNull(imageURL), fromNull(videoURL)
	return p, nil
}

// viewer converts an optional user id into a query argument. Anonymous
// viewers never match a like row.
func viewer(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func searchPattern(search string) any {
	search = strings.TrimSpace(search)
	if search == "" {
		return nil
	}
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(search) + "%"
}

func (r *Repository) List(ctx context.Context, q ListQuery) (Page, error) {
	pattern := searchPattern(q.Search)

	var total int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM posts p
		WHERE ($1::text IS NULL OR p.title ILIKE $1 OR p.content ILIKE $1)
	`, pattern).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count posts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		WHERE ($2::text IS NULL OR p.title ILIKE $2 OR p.content ILIKE $2)
		ORDER BY p.created_at DESC, p.id DESC
		OFFSET $3 LIMIT $4
	`, viewer(q.ViewerID), pattern, q.Skip, q.Limit)
	if err != nil {
		return Page{}, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate posts: %w", err)
	}

	return Page{Total: total, Posts: posts}, nil
}

// Get loads a post with its owner. Comments are attached by the service.
func (r *Repository) Get(ctx context.Context, id int64, viewerID string) (Detail, error) {
	var (
		d                           Detail
		content, imageURL, videoURL sql.NullString
		ownerName                   sql.NullString
	)
	targets := append(postTargets(&d.Post, &content, &imageURL, &videoURL), d.Owner.ScanTargets(&ownerName)...)

	err := r.db.QueryRowContext(ctx, `
		SELECT `+postColumns+`, `+auth.ProfileColumns+`
		FROM posts p
		JOIN users u ON u.id = p.owner_id
		WHERE p.id = $2
	`, viewer(viewerID), id).Scan(targets...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Detail{}, ErrPostNotFound
		}
		return Detail{}, fmt.Errorf("query post: %w", err)
	}

	d.Content, d.ImageURL, d.VideoURL = fromNull(content), fromNull(imageURL), fromNull(videoURL)
	d.Owner.Normalize(ownerName)
	return d, nil
}

func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check post: %w", err)
	}
	return exists, nil
}

func (r *Repository) Create(ctx context.Context, ownerID string, input Input) (Post, error) {
	now := time.Now().UTC()
	p, err := scanPost(r.db.QueryRowContext(ctx, `
		WITH p AS (
			INSERT INTO posts (title, content, image_url, video_url, owner_id, created_at, updated_at)
			VALUES ($2, $3, $4, $5, $1, $6, $6)
			RETURNING *
		)
		SELECT p.id, p.title, p.content, p.image_url, p.video_url, p.owner_id, p.created_at, p.updated_at,
			0::bigint AS likes_count, FALSE AS user_has_liked
		FROM p
	`, ownerID, input.Title, input.Content, input.ImageURL, input.VideoURL, now))
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}

	return p, nil
}

// Update applies the fields set in patch and returns the post as the viewer
// sees it afterwards.
func (r *Repository) Update(ctx context.Context, id int64, viewerID string, patch Patch) (Post, error) {
	sets := make([]string, 0, 5)
	args := []any{viewer(viewerID), id}
	add := func(column string, field Field) {
		if !field.Set {
			return
		}
		args = append(args, field.Value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	add("title", patch.Title)
	add("content", patch.Content)
	add("image_url", patch.ImageURL)
	add("video_url", patch.VideoURL)
	args = append(args, time.Now().UTC())
	sets = append(sets, "updated_at = $"+strconv.Itoa(len(args)))

	p, err := scanPost(r.db.QueryRowContext(ctx, `
		WITH p AS (
			UPDATE posts
			SET `+strings.Join(sets, ", ")+`
			WHERE id = $2
			RETURNING *
		)
		SELECT `+postColumns+`
		FROM p
	`, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, ErrPostNotFound
		}
		return Post{}, fmt.Errorf("update post: %w", err)
	}

	return p, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPostNotFound
	}

	return nil
}

// ToggleLike removes the user's like if present and adds it otherwise, in one
// transaction. The existing row is locked before it is deleted; a racing
// insert loses on the (user_id, post_id) primary key and is reported as
// ErrLikeConflict. A post deleted before the insert yields ErrPostNotFound.
func (r *Repository) ToggleLike(ctx context.Context, postID int64, userID string) (LikeStatus, error) {
	var status LikeStatus
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT TRUE
			FROM likes
			WHERE user_id = $1 AND post_id = $2
			FOR UPDATE
		`, userID, postID).Scan(&exists)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock like: %w", err)
		}

		if exists {
			if _, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE user_id = $1 AND post_id = $2`, userID, postID); err != nil {
				return fmt.Errorf("delete like: %w", err)
			}
			status = Unliked
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO likes (user_id, post_id, created_at)
			VALUES ($1, $2, $3)
		`, userID, postID, time.Now().UTC()); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrLikeConflict
			}
			if db.IsForeignKeyViolation(err) {
				return ErrPostNotFound
			}
			return fmt.Errorf("insert like: %w", err)
		}
		status = Liked
		return nil
	})
	if err != nil {
		return "", err
	}

	return status, nil
}
