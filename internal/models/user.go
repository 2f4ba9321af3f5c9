package models

import "time"

type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusLocked   UserStatus = "LOCKED"
	UserStatusDisabled UserStatus = "DISABLED"
)

type User struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Status              UserStatus `json:"status"`
	Roles               []string   `json:"roles"`
	Permissions         []string   `json:"permissions"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP         string     `json:"-"`
	PasswordChangedAt   *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
}

// IsLocked reports whether the lockout window is still in effect.
// An elapsed window does not flip the row back here; the login path
// wipes the counters once it sees the window has passed.
func (u *User) IsLocked(now time.Time) bool {
	if u.Status != UserStatusLocked {
		return false
	}
	if u.LockedUntil != nil && now.After(*u.LockedUntil) {
		return false
	}
	return true
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
