package domain

import "time"

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

type User struct {
	ID          string
	Email       string
	Username    string
	Status      UserStatus
	Profile     Profile
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// DisplayLabel is the profile display name, falling back to the username.
func (u User) DisplayLabel() string {
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	return u.Username
}

type Profile struct {
	DisplayName string   `json:"display_name"`
	Bio         string   `json:"bio"`
	Tags        []string `json:"tags"`
}

type UserWithPassword struct {
	User
	PasswordHash string
}

type ExternalAccount struct {
	ID         string
	UserID     string
	Provider   string
	ProviderID string
	Email      string
	CreatedAt  time.Time
}

type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// ProfilePatch carries the profile fields to change; nil leaves a field alone.
type ProfilePatch struct {
	DisplayName *string
	Bio         *string
	Tags        *[]string
}
