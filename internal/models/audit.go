package models

import "time"

type AuditAction string

const (
	AuditLogin          AuditAction = "LOGIN"
	AuditLoginFailed    AuditAction = "LOGIN_FAILED"
	AuditLogout         AuditAction = "LOGOUT"
	AuditLogoutAll      AuditAction = "LOGOUT_ALL"
	AuditRegister       AuditAction = "REGISTER"
	AuditTokenRefresh   AuditAction = "TOKEN_REFRESH"
	AuditPasswordChange AuditAction = "PASSWORD_CHANGE"
	AuditForceLogout    AuditAction = "FORCE_LOGOUT"
	AuditStatusChange   AuditAction = "STATUS_CHANGE"
)

type AuditRecord struct {
	ID           int64       `json:"id"`
	UserID       *int64      `json:"user_id,omitempty"`
	TargetUserID *int64      `json:"target_user_id,omitempty"`
	Action       AuditAction `json:"action"`
	IPAddress    string      `json:"ip_address"`
	UserAgent    string      `json:"user_agent"`
	Success      bool        `json:"success"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
