package media

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository records who uploaded each stored object.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, publicURL, key, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO media (url, object_key, owner_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO NOTHING
	`, publicURL, key, ownerID, time.Now().UTC()); err != nil {
		return fmt.Errorf("record media: %w", err)
	}
	return nil
}

// Release drops the ownership row when publicURL was uploaded by ownerID and
// no post references it any more. It reports whether the object may be
// removed from storage.
func (r *Repository) Release(ctx context.Context, publicURL, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM media m
		WHERE m.url = $1
			AND m.owner_id = $2
			AND NOT EXISTS (
				SELECT 1 FROM posts p
				WHERE p.image_url = $1 OR p.video_url = $1
			)
	`, publicURL, ownerID)
	if err != nil {
		return false, fmt.Errorf("release media: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release media rows: %w", err)
	}
	return affected == 1, nil
}
