package models

import "time"

// Post statuses.
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
	PostStatusHidden    = "hidden"
	PostStatusBanned    = "banned"
	PostStatusDeleted   = "deleted"
)

// Post represents a forum post created by a user.
type Post struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	UserID      uint        `gorm:"index;not null" json:"user_id"`
	Title       string      `gorm:"size:255;not null" json:"title"`
	Content     string      `gorm:"type:text;not null" json:"content"`
	Status      string      `gorm:"size:16;not null;default:'draft';index" json:"status"`
	PrevStatus  string      `gorm:"size:16" json:"-"` // restored by recover/unban
	IsArchived  bool        `gorm:"not null;default:false" json:"is_archived"`
	Attachments StringList  `json:"attachments"`
	ReplyCount  int         `gorm:"not null;default:0;index" json:"reply_count"`
	PublishedAt *time.Time  `json:"published_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	User        User        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Author      *PublicUser `gorm:"-" json:"author,omitempty"`
}

// WithAuthor fills Author from the preloaded User.
func (p *Post) WithAuthor() *Post {
	if p.User.ID != 0 {
		pu := p.User.Public()
		p.Author = &pu
	}
	return p
}

// ValidPostStatus reports whether s is a known status.
func ValidPostStatus(s string) bool {
	switch s {
	case PostStatusDraft, PostStatusPublished, PostStatusHidden, PostStatusBanned, PostStatusDeleted:
		return true
	}
	return false
}
