package services

import (
	"github.com/pkg/errors"

	"github.com/threadboard/server/replytree"
)

var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrUserBanned       = errors.New("account is banned")
	ErrNotVerified      = errors.New("email not verified")
	ErrForbidden        = errors.New("permission denied")
	ErrPostNotFound     = errors.New("post not found")
	ErrReplyNotFound    = errors.New("reply not found")
	ErrPostNotPublished = errors.New("post is not published")
	ErrPostArchived     = errors.New("post is archived")
	ErrEmptyContent     = errors.New("content cannot be empty")

	// re-exported so callers only need this package to match reply tree failures
	ErrDepthExceeded  = replytree.ErrDepthExceeded
	ErrPathOutOfRange = replytree.ErrPathOutOfRange
)
