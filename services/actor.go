package services

import (
	"strings"

	"github.com/threadboard/server/models"
)

// Actor is the caller as the services see it. The zero value is an anonymous visitor.
type Actor struct {
	UserID   uint
	Username string
	Verified bool
	Admin    bool
	Active   bool
}

// ActorFromUser derives the capability set from a loaded user row.
// Usernames listed in adminNames are treated as admins regardless of their stored type.
func ActorFromUser(u *models.User, adminNames []string) Actor {
	if u == nil || u.ID == 0 {
		return Actor{}
	}
	a := Actor{
		UserID:   u.ID,
		Username: u.Username,
		Verified: u.IsVerified(),
		Admin:    u.IsAdmin(),
		Active:   !u.Banned,
	}
	for _, name := range adminNames {
		if strings.EqualFold(strings.TrimSpace(name), u.Username) {
			a.Admin = true
			a.Verified = true
			break
		}
	}
	return a
}

// Authenticated reports whether the actor is a signed in user.
func (a Actor) Authenticated() bool { return a.UserID != 0 }

// CanWrite checks the preconditions shared by every content creating operation.
func (a Actor) CanWrite() error {
	switch {
	case !a.Authenticated():
		return ErrUnauthenticated
	case !a.Active:
		return ErrUserBanned
	case !a.Verified:
		return ErrNotVerified
	}
	return nil
}

// CanViewPost reports whether the post is visible: published posts to everyone,
// anything else to its owner and admins. Deleted posts are admin only.
func (a Actor) CanViewPost(p *models.Post) bool {
	if p.Status == models.PostStatusPublished {
		return true
	}
	if a.Admin {
		return true
	}
	if p.Status == models.PostStatusDeleted || p.Status == models.PostStatusBanned {
		return false
	}
	return a.Authenticated() && p.UserID == a.UserID
}

// OwnsOrAdmin reports whether the actor may manage a resource owned by ownerID.
func (a Actor) OwnsOrAdmin(ownerID uint) bool {
	return a.Admin || (a.Authenticated() && a.UserID == ownerID)
}
