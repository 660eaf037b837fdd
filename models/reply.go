package models

import "time"

// Reply is one node of a post's reply tree, stored flat. ParentID is nil for top-level replies.
type Reply struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PostID      uint       `gorm:"index;not null" json:"post_id"`
	ParentID    *uint      `gorm:"index" json:"parent_id"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	Depth       int        `gorm:"not null;default:1" json:"depth"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	Attachments StringList `json:"attachments"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	User        User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
