package api

import "errors"

// Filter-level failures. The error handler maps these onto the JSON error
// envelope; the fail-open store conditions never surface here.
var (
	ErrAuthHeaderMissing   = errors.New("missing authorization header")
	ErrAuthHeaderMalformed = errors.New("invalid authorization header format")
	ErrInsufficientRole    = errors.New("access denied, insufficient permissions")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded, please slow down")
	ErrLoginRateLimited    = errors.New("too many login attempts, please try again later")
)
