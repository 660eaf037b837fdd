package models

import "time"

// UploadedFile records locally stored uploaded files for ownership checks and timed cleanup.
type UploadedFile struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Key         string     `gorm:"size:64;uniqueIndex;not null" json:"key"`
	UserID      uint       `gorm:"index" json:"user_id"`
	FilePath    string     `gorm:"size:1024;not null" json:"-"`   // absolute or relative filesystem path
	URL         string     `gorm:"size:1024;not null" json:"url"` // public URL like /static/uploads/...
	Size        int64      `json:"size"`
	ContentType string     `gorm:"size:128" json:"content_type"`
	Kind        string     `gorm:"size:32" json:"type"`
	ExpireAt    *time.Time `gorm:"index" json:"expire_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
