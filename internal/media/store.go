package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedType = errors.New("unsupported media type")

// Store persists uploaded media and removes it again by public URL. Delete
// ignores URLs the store did not produce, so posts may also reference
// external media.
type Store interface {
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, publicURL string) error
}

var allowedTypes = map[string]string{
	"image/jpeg":      "images",
	"image/jpg":       "images",
	"image/png":       "images",
	"image/gif":       "images",
	"image/webp":      "images",
	"video/mp4":       "videos",
	"video/webm":      "videos",
	"video/quicktime": "videos",
}

// NewKey returns a fresh object key such as "images/<uuid>.png" for the given
// content type, keeping the extension of the client's filename.
func NewKey(contentType, filename string) (string, error) {
	folder, ok := allowedTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate media key: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "." || len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}

	return path.Join(folder, id.String()+ext), nil
}

// keyUnder returns the object key of publicURL if it lives under base.
func keyUnder(base, publicURL string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if base == "" || !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}

	key := path.Clean(strings.TrimPrefix(publicURL, prefix))
	if key == "." || key == "/" || strings.HasPrefix(key, "../") || key == ".." {
		return "", false
	}
	return key, true
}
