package models

import "time"

// Session is a server-side sign-in. Access tokens reference it by ID so
// revoking the row revokes every token issued for it.
type Session struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	UserID      string     `gorm:"size:36;not null;index" json:"user_id"`
	RefreshHash string     `gorm:"size:64;not null" json:"refresh_hash"`
	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the session can still be used at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
