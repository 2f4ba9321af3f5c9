package models

import "time"

// UserSession is one row per login. It survives refresh-token rotation:
// the row is rebound to the successor token, never recreated.
type UserSession struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	RefreshTokenID int64     `json:"-"`
	DeviceInfo     string    `json:"device_info"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	IsActive       bool      `json:"is_active"`
	LastAccessAt   time.Time `json:"last_access_at"`
	CreatedAt      time.Time `json:"created_at"`
}
