package models

import "time"

// Contact message statuses.
const (
	MessageStatusOpen   = "open"
	MessageStatusClosed = "closed"
)

// ContactMessage is a message sent through the public contact form.
type ContactMessage struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      *uint      `gorm:"index" json:"user_id"`
	Email       string     `gorm:"size:255;not null" json:"email"`
	Subject     string     `gorm:"size:255;not null" json:"subject"`
	Message     string     `gorm:"type:text;not null" json:"message"`
	Attachments StringList `json:"attachments"`
	Status      string     `gorm:"size:16;not null;default:'open';index" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
