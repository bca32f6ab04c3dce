// Package guard decides whether an identity may perform an action on a
// resource. Rules run in a fixed order and the first failure wins:
// authenticated, verified, owner, not-self-like.
package guard

import (
	"postboard/internal/apperr"
	"postboard/internal/auth"
)

type Action int

const (
	ViewProfile Action = iota + 1
	CreatePost
	UpdatePost
	DeletePost
	CreateComment
	UpdateComment
	DeleteComment
	ToggleLike
	Upload
)

var actionNames = map[Action]string{
	ViewProfile:   "view_profile",
	CreatePost:    "create_post",
	UpdatePost:    "update_post",
	DeletePost:    "delete_post",
	CreateComment: "create_comment",
	UpdateComment: "update_comment",
	DeleteComment: "delete_comment",
	ToggleLike:    "toggle_like",
	Upload:        "upload",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

func (a Action) mutates() bool {
	return a != ViewProfile
}

func (a Action) needsOwner() bool {
	switch a {
	case UpdatePost, DeletePost, UpdateComment, DeleteComment:
		return true
	}
	return false
}

// Request describes one authorization check. OwnerID is the owner of the
// target resource: the post or comment being changed, or the post being
// liked. It is ignored for actions without a target.
type Request struct {
	Identity *auth.Identity
	Action   Action
	OwnerID  string
}

type rule func(Request) error

var rules = []rule{
	requireAuthenticated,
	requireVerified,
	requireOwner,
	forbidSelfLike,
}

func Authorize(req Request) error {
	for _, check := range rules {
		if err := check(req); err != nil {
			return err
		}
	}
	return nil
}

// Actor runs the identity rules only. Services call it before loading the
// target so an unverified caller learns nothing about whether it exists.
func Actor(identity *auth.Identity, action Action) error {
	req := Request{Identity: identity, Action: action}
	if err := requireAuthenticated(req); err != nil {
		return err
	}
	return requireVerified(req)
}

func requireAuthenticated(req Request) error {
	if req.Identity == nil || req.Identity.ID == "" || !req.Identity.Active {
		return apperr.ErrUnauthenticated
	}
	return nil
}

func requireVerified(req Request) error {
	if req.Action.mutates() && !req.Identity.Verified {
		return apperr.ErrUnverified
	}
	return nil
}

func requireOwner(req Request) error {
	if req.Action.needsOwner() && req.Identity.ID != req.OwnerID {
		return apperr.ErrNotOwner
	}
	return nil
}

func forbidSelfLike(req Request) error {
	if req.Action == ToggleLike && req.Identity.ID == req.OwnerID {
		return apperr.ErrSelfLikeForbidden
	}
	return nil
}
