package models

import (
	"time"

	"github.com/diewo77/studio-console/auth"
)

// Role values as stored in the profiles table.
const (
	RoleClient       = "client"
	RoleCollaborator = "collaborator"
	RoleAdmin        = "admin"
)

// Profile is the application-level record for a user, keyed by the user's
// identity id. Role is stored as text; readers map unknown values to the
// most restrictive role.
type Profile struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	Email       string    `gorm:"size:255;not null" json:"email"`
	Role        string    `gorm:"size:32;not null;default:client;index" json:"role"`
	AvatarURL   string    `gorm:"size:500" json:"avatar_url,omitempty"`
}

// Row converts the record to the shape served to clients.
func (p Profile) Row() auth.ProfileRow {
	return auth.ProfileRow{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Role:        p.Role,
		AvatarURL:   p.AvatarURL,
	}
}
