package models

import "time"

// RefreshToken is the persisted long-lived credential. The opaque value
// handed to the client is never stored; only its SHA-256 hash is.
// Once RevokedAt is set it is permanent: rotation, logout and expiry are
// all terminal states.
type RefreshToken struct {
	ID            int64      `json:"id"`
	TokenHash     string     `json:"-"`
	UserID        int64      `json:"user_id"`
	DeviceInfo    string     `json:"device_info"`
	IPAddress     string     `json:"ip_address"`
	UserAgent     string     `json:"user_agent"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsRevoked()
}

// BlacklistEntry mirrors the blacklisted access token's own expiry so the
// row is safely prunable once the token would no longer verify anyway.
type BlacklistEntry struct {
	JTI       string    `json:"jti"`
	UserID    int64     `json:"user_id"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

const TokenTypeAccess = "ACCESS"
