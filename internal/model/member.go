package model

import "time"

type Member struct {
	ID              int64      `json:"id"`
	Email           *string    `json:"email"`
	GivenName       string     `json:"given_name"`
	FamilyName      string     `json:"family_name"`
	DisplayName     string     `json:"display_name"`
	AvatarEmoji     string     `json:"avatar_emoji"`
	FamilyID        *int64     `json:"family_id"`
	Points          int        `json:"points"`
	Level           int        `json:"level"`
	Streak          int        `json:"streak"`
	LastCompletedAt *time.Time `json:"last_completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsVirtual reports whether the member is a profile without login credentials.
func (m Member) IsVirtual() bool {
	return m.Email == nil
}
