package models

import (
	"time"

	"gorm.io/gorm"
)

// User types. Unverified accounts may read but not reply.
const (
	UserTypeUnverified = "unverified"
	UserTypeUser       = "user"
	UserTypeAdmin      = "admin"
	UserTypeSuperAdmin = "super_admin"
)

// User represents a forum user. Passwords are stored as bcrypt hashes only.
type User struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Username        string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email           string         `gorm:"size:255;index" json:"email"`
	PasswordHash    string         `gorm:"size:255" json:"-"`
	Provider        string         `gorm:"size:32" json:"provider"`
	ProviderID      string         `gorm:"size:255;index" json:"provider_id"`
	FirstName       string         `gorm:"size:64" json:"first_name"`
	LastName        string         `gorm:"size:64" json:"last_name"`
	Bio             string         `gorm:"size:512" json:"bio"`
	ProfileImageURL string         `gorm:"size:512" json:"profile_image_url"`
	Type            string         `gorm:"size:16;not null;default:'unverified';index" json:"type"`
	Banned          bool           `gorm:"not null;default:false" json:"-"`
	EmailVerifiedAt *time.Time     `json:"email_verified_at"`
	RegisterIP      string         `gorm:"size:45" json:"-"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// PublicUser is the author block embedded in posts and replies.
type PublicUser struct {
	ID              uint   `json:"id"`
	Username        string `json:"username"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	ProfileImageURL string `json:"profile_image_url"`
	Type            string `json:"type"`
}

// IsAdmin reports whether the user may moderate.
func (u *User) IsAdmin() bool {
	return u.Type == UserTypeAdmin || u.Type == UserTypeSuperAdmin
}

// IsVerified reports whether the user confirmed their email (admins always are).
func (u *User) IsVerified() bool {
	return u.Type != "" && u.Type != UserTypeUnverified
}

// Public strips private fields.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Username:        u.Username,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ProfileImageURL: u.ProfileImageURL,
		Type:            u.Type,
	}
}

// BeforeCreate hook ensures timestamps and type are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Type == "" {
		u.Type = UserTypeUnverified
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
