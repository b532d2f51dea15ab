package domain

import "time"

const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// MaxDevicesPerUser caps registered push tokens per user; registering past
// the cap evicts the least recently refreshed token.
const MaxDevicesPerUser = 10

// ValidPlatform reports whether p names a platform FCM tokens are accepted for.
func ValidPlatform(p string) bool {
	return p == PlatformIOS || p == PlatformAndroid
}

type NotificationToken struct {
	ID        string    `json:"-"`
	UserID    string    `json:"-"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
