package media

import (
	"context"
	"fmt"

	"postboard/internal/observability"
)

// Records tracks upload ownership. Repository is the Postgres implementation.
type Records interface {
	Record(ctx context.Context, publicURL, key, ownerID string) error
	Release(ctx context.Context, publicURL, ownerID string) (bool, error)
}

// Library pairs a Store with ownership records so stored objects are only
// ever removed on behalf of the user who uploaded them.
type Library struct {
	store   Store
	records Records
	logger  *observability.Logger
}

func NewLibrary(store Store, records Records, logger *observability.Logger) *Library {
	return &Library{store: store, records: records, logger: logger}
}

func (l *Library) Upload(ctx context.Context, ownerID, key, contentType string, data []byte) (string, error) {
	publicURL, err := l.store.Save(ctx, key, contentType, data)
	if err != nil {
		return "", err
	}

	if err := l.records.Record(ctx, publicURL, key, ownerID); err != nil {
		if delErr := l.store.Delete(ctx, publicURL); delErr != nil {
			l.logger.Warn("media_orphaned", map[string]any{"url": publicURL, "error": delErr})
		}
		return "", fmt.Errorf("record upload: %w", err)
	}

	return publicURL, nil
}

// Release removes publicURL from storage when ownerID uploaded it and no post
// still points at it. Anything else, external links included, is left alone.
func (l *Library) Release(ctx context.Context, ownerID, publicURL string) error {
	released, err := l.records.Release(ctx, publicURL, ownerID)
	if err != nil {
		return err
	}
	if !released {
		return nil
	}
	return l.store.Delete(ctx, publicURL)
}
