package models

import "time"

// ViewHistory stores the last time a user opened a post.
type ViewHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_history_user_post;not null" json:"user_id"`
	PostID    uint      `gorm:"uniqueIndex:idx_history_user_post;not null;index" json:"post_id"`
	ViewCount int       `gorm:"not null;default:1" json:"view_count"`
	ViewedAt  time.Time `gorm:"index" json:"viewed_at"`
	Post      Post      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"post"`
}
