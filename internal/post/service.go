package post

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"postboard/internal/apperr"
	"postboard/internal/auth"
	"postboard/internal/comment"
	"postboard/internal/guard"
	"postboard/internal/observability"
)

var (
	allowedURLChars = regexp.MustCompile(`^[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+$`)
	allowedHost     = regexp.MustCompile(`^[A-Za-z0-9.-]+(:[0-9]+)?$`)
)

type Store interface {
	List(ctx context.Context, q ListQuery) (Page, error)
	Get(ctx context.Context, id int64, viewerID string) (Detail, error)
	Create(ctx context.Context, ownerID string, input Input) (Post, error)
	Update(ctx context.Context, id int64, viewerID string, patch Patch) (Post, error)
	Delete(ctx context.Context, id int64) error
	ToggleLike(ctx context.Context, postID int64, userID string) (LikeStatus, error)
}

type CommentLister interface {
	ListByPost(ctx context.Context, postID int64) ([]comment.Comment, error)
}

// MediaReleaser removes stored media a post no longer uses. Only objects
// uploaded by ownerID and unreferenced by any post are deleted; media.Library
// implements it.
type MediaReleaser interface {
	Release(ctx context.Context, ownerID, publicURL string) error
}

type Service struct {
	posts    Store
	comments CommentLister
	media    MediaReleaser
	logger   *observability.Logger
}

func NewService(posts Store, comments CommentLister, media MediaReleaser, logger *observability.Logger) *Service {
	return &Service{posts: posts, comments: comments, media: media, logger: logger}
}

func (s *Service) List(ctx context.Context, viewer *auth.Identity, q ListQuery) (Page, error) {
	if q.Skip < 0 {
		q.Skip = 0
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	q.ViewerID = viewerID(viewer)

	return s.posts.List(ctx, q)
}

func (s *Service) Get(ctx context.Context, viewer *auth.Identity, id int64) (Detail, error) {
	d, err := s.posts.Get(ctx, id, viewerID(viewer))
	if err != nil {
		return Detail{}, notFound(err)
	}

	d.Comments, err = s.comments.ListByPost(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return d, nil
}

func (s *Service) Create(ctx context.Context, user *auth.Identity, input Input) (Post, error) {
	if err := guard.Authorize(guard.Request{Identity: user, Action: guard.CreatePost}); err != nil {
		return Post{}, err
	}

	title, err := cleanTitle(input.Title)
	if err != nil {
		return Post{}, err
	}
	input.Title = title
	if input.Content, err = cleanContent(input.Content); err != nil {
		return Post{}, err
	}
	if input.ImageURL, err = cleanMediaURL("image_url", input.ImageURL); err != nil {
		return Post{}, err
	}
	if input.VideoURL, err = cleanMediaURL("video_url", input.VideoURL); err != nil {
		return Post{}, err
	}

	p, err := s.posts.Create(ctx, user.ID, input)
	if err != nil {
		return Post{}, err
	}

	s.logger.Info("post_created", map[string]any{"post_id": p.ID, "user_id": user.ID})
	return p, nil
}

// Update applies a partial update. Media replaced or cleared by the update
// is removed from storage afterwards; removal failures are only logged.
func (s *Service) Update(ctx context.Context, user *auth.Identity, id int64, patch Patch) (Post, error) {
	existing, err := s.authorized(ctx, user, id, guard.UpdatePost)
	if err != nil {
		return Post{}, err
	}

	if patch.Title.Set {
		if patch.Title.Value == nil {
			return Post{}, apperr.WithDetail(apperr.KindInvalidInput, "title is required")
		}
		title, err := cleanTitle(*patch.Title.Value)
		if err != nil {
			return Post{}, err
		}
		patch.Title.Value = &title
	}
	if patch.Content.Set {
		if patch.Content.Value, err = cleanContent(patch.Content.Value); err != nil {
			return Post{}, err
		}
	}
	if patch.ImageURL.Set {
		if patch.ImageURL.Value, err = cleanMediaURL("image_url", patch.ImageURL.Value); err != nil {
			return Post{}, err
		}
	}
	if patch.VideoURL.Set {
		if patch.VideoURL.Value, err = cleanMediaURL("video_url", patch.VideoURL.Value); err != nil {
			return Post{}, err
		}
	}

	updated, err := s.posts.Update(ctx, id, user.ID, patch)
	if err != nil {
		return Post{}, notFound(err)
	}

	if patch.ImageURL.Set {
		s.removeReplaced(ctx, existing.OwnerID, existing.ImageURL, updated.ImageURL)
	}
	if patch.VideoURL.Set {
		s.removeReplaced(ctx, existing.OwnerID, existing.VideoURL, updated.VideoURL)
	}

	return updated, nil
}

func (s *Service) Delete(ctx context.Context, user *auth.Identity, id int64) error {
	existing, err := s.authorized(ctx, user, id, guard.DeletePost)
	if err != nil {
		return err
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		return notFound(err)
	}

	s.removeReplaced(ctx, existing.OwnerID, existing.ImageURL, nil)
	s.removeReplaced(ctx, existing.OwnerID, existing.VideoURL, nil)
	s.logger.Info("post_deleted", map[string]any{"post_id": id, "user_id": user.ID})
	return nil
}

func (s *Service) ToggleLike(ctx context.Context, user *auth.Identity, id int64) (LikeStatus, error) {
	target, err := s.authorized(ctx, user, id, guard.ToggleLike)
	if err != nil {
		return "", err
	}

	status, err := s.posts.ToggleLike(ctx, target.ID, user.ID)
	if err != nil {
		if errors.Is(err, ErrLikeConflict) {
			return "", apperr.WithDetail(apperr.KindConflict, "LIKE_CONFLICT")
		}
		if errors.Is(err, ErrPostNotFound) {
			return "", notFound(err)
		}
		return "", err
	}
	return status, nil
}

// authorized checks the caller before loading the post, then applies the
// owner-dependent rules.
func (s *Service) authorized(ctx context.Context, user *auth.Identity, id int64, action guard.Action) (Post, error) {
	if err := guard.Actor(user, action); err != nil {
		return Post{}, err
	}

	d, err := s.posts.Get(ctx, id, user.ID)
	if err != nil {
		return Post{}, notFound(err)
	}

	if err := guard.Authorize(guard.Request{Identity: user, Action: action, OwnerID: d.OwnerID}); err != nil {
		return Post{}, err
	}
	return d.Post, nil
}

func (s *Service) removeReplaced(ctx context.Context, ownerID string, previous, current *string) {
	if s.media == nil || previous == nil || *previous == "" {
		return
	}
	if current != nil && *current == *previous {
		return
	}

	if err := s.media.Release(ctx, ownerID, *previous); err != nil {
		s.logger.Warn("media_delete_failed", map[string]any{"url": *previous, "error": err})
		return
	}
	s.logger.Info("media_deleted", map[string]any{"url": *previous})
}

func viewerID(viewer *auth.Identity) string {
	if viewer == nil {
		return ""
	}
	return viewer.ID
}

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperr.WithDetail(apperr.KindInvalidInput, "title is required")
	}
	if !utf8.ValidString(title) || utf8.RuneCountInString(title) > maxTitleLength {
		return "", apperr.WithDetail(apperr.KindInvalidInput, "title is invalid")
	}
	return title, nil
}

func cleanContent(content *string) (*string, error) {
	if content == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*content)
	if !utf8.ValidString(value) || utf8.RuneCountInString(value) > maxContentLength {
		return nil, apperr.WithDetail(apperr.KindInvalidInput, "content is invalid")
	}
	return &value, nil
}

// cleanMediaURL accepts an absolute http(s) link. Empty strings clear the field.
func cleanMediaURL(field string, raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}

	invalid := apperr.WithDetail(apperr.KindInvalidInput, field+" must be a valid http or https link")
	if len(value) > 255 || !allowedURLChars.MatchString(value) {
		return nil, invalid
	}
	parsed, err := url.ParseRequestURI(value)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, invalid
	}
	if parsed.User != nil || !allowedHost.MatchString(parsed.Host) {
		return nil, invalid
	}

	return &value, nil
}

func notFound(err error) error {
	if errors.Is(err, ErrPostNotFound) {
		return apperr.WithDetail(apperr.KindNotFound, "POST_NOT_FOUND")
	}
	return err
}
