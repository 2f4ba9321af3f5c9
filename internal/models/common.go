package models

// Header names shared between the edge filters and downstream services.
// The injected X-User-* headers are the only channel by which internal
// services learn the caller's identity.
const (
	HeaderUserID          = "X-User-Id"
	HeaderUserName        = "X-User-Name"
	HeaderUserRoles       = "X-User-Roles"
	HeaderUserPermissions = "X-User-Permissions"
	HeaderCorrelationID   = "X-Correlation-Id"

	// Echo context keys set by the authenticator for local handlers.
	CtxUserID        = "userID"
	CtxUsername      = "username"
	CtxRoles         = "roles"
	CtxPermissions   = "permissions"
	CtxCorrelationID = "correlationID"
	CtxAccessToken   = "accessToken"
)
