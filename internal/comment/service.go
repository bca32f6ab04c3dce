package comment

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"postboard/internal/apperr"
	"postboard/internal/auth"
	"postboard/internal/guard"
	"postboard/internal/observability"
)

type Store interface {
	ListByPost(ctx context.Context, postID int64) ([]Comment, error)
	Get(ctx context.Context, id int64) (Comment, error)
	Create(ctx context.Context, postID int64, ownerID, content string) (Comment, error)
	Update(ctx context.Context, id int64, content string) (Comment, error)
	Delete(ctx context.Context, id int64) error
}

// PostLookup reports whether a post exists. The post repository satisfies it.
type PostLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type Service struct {
	comments Store
	posts    PostLookup
	logger   *observability.Logger
}

func NewService(comments Store, posts PostLookup, logger *observability.Logger) *Service {
	return &Service{comments: comments, posts: posts, logger: logger}
}

func (s *Service) List(ctx context.Context, postID int64) ([]Comment, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	return s.comments.ListByPost(ctx, postID)
}

func (s *Service) Create(ctx context.Context, user *auth.Identity, postID int64, content string) (Comment, error) {
	if err := guard.Actor(user, guard.CreateComment); err != nil {
		return Comment{}, err
	}
	content, err := cleanContent(content)
	if err != nil {
		return Comment{}, err
	}
	if err := s.requirePost(ctx, postID); err != nil {
		return Comment{}, err
	}

	c, err := s.comments.Create(ctx, postID, user.ID, content)
	if err != nil {
		return Comment{}, err
	}

	s.logger.Info("comment_created", map[string]any{"comment_id": c.ID, "post_id": postID, "user_id": user.ID})
	return c, nil
}

func (s *Service) Update(ctx context.Context, user *auth.Identity, id int64, content string) (Comment, error) {
	existing, err := s.authorized(ctx, user, id, guard.UpdateComment)
	if err != nil {
		return Comment{}, err
	}
	content, err = cleanContent(content)
	if err != nil {
		return Comment{}, err
	}

	updated, err := s.comments.Update(ctx, existing.ID, content)
	if err != nil {
		return Comment{}, notFound(err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, user *auth.Identity, id int64) error {
	existing, err := s.authorized(ctx, user, id, guard.DeleteComment)
	if err != nil {
		return err
	}

	if err := s.comments.Delete(ctx, existing.ID); err != nil {
		return notFound(err)
	}

	s.logger.Info("comment_deleted", map[string]any{"comment_id": id, "user_id": user.ID})
	return nil
}

func (s *Service) authorized(ctx context.Context, user *auth.Identity, id int64, action guard.Action) (Comment, error) {
	if err := guard.Actor(user, action); err != nil {
		return Comment{}, err
	}

	existing, err := s.comments.Get(ctx, id)
	if err != nil {
		return Comment{}, notFound(err)
	}

	if err := guard.Authorize(guard.Request{Identity: user, Action: action, OwnerID: existing.OwnerID}); err != nil {
		return Comment{}, err
	}
	return existing, nil
}

func (s *Service) requirePost(ctx context.Context, postID int64) error {
	ok, err := s.posts.Exists(ctx, postID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.WithDetail(apperr.KindNotFound, "POST_NOT_FOUND")
	}
	return nil
}

func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.WithDetail(apperr.KindInvalidInput, "content is required")
	}
	if !utf8.ValidString(content) || utf8.RuneCountInString(content) > maxContentLength {
		return "", apperr.WithDetail(apperr.KindInvalidInput, "content is invalid")
	}
	return content, nil
}

func notFound(err error) error {
	if errors.Is(err, ErrCommentNotFound) {
		return apperr.WithDetail(apperr.KindNotFound, "COMMENT_NOT_FOUND")
	}
	return err
}
