package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
	"github.com/streamworks/edge-auth/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidStatus      = errors.New("unknown account status")
)

const (
	defaultRole = "USER"

	reasonUserLogout      = "user logout"
	reasonSessionRevoked  = "session revoked"
	reasonLogoutAll       = "logout all sessions"
	reasonPasswordChanged = "password changed"
	reasonForcedLogout    = "forced admin logout"
	reasonAccountDisabled = "account disabled"
)

// AuthService drives login, refresh and logout flows on top of the token
// lifecycle manager and the session registry.
type AuthService struct {
	users    storage.UserRepository
	tokens   *TokenService
	sessions *SessionRegistry
	audit    *AuditService
	webhook  *WebhookService
	lockout  *util.LockoutConfig
	log      *zap.SugaredLogger
}

func NewAuthService(
	users storage.UserRepository,
	tokens *TokenService,
	sessions *SessionRegistry,
	audit *AuditService,
	webhook *WebhookService,
	lockout *util.LockoutConfig,
	log *zap.SugaredLogger,
) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		audit:    audit,
		webhook:  webhook,
		lockout:  lockout,
		log:      log,
	}
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, ip, userAgent string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Status:       models.UserStatusActive,
		Roles:        []string{defaultRole},
		Permissions:  []string{"movie:read", "profile:write"},
	}

	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.audit.LogSuccess(ctx, &created.ID, models.AuditRegister, ip, userAgent)
	return created, nil
}

// Login verifies credentials under the lockout policy: five consecutive
// failures lock the account, and a locked account is rejected before the
// password hash is ever consulted.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, ip, userAgent string) (*models.AuthResponse, error) {
	user, err := s.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.audit.LogFailure(ctx, nil, models.AuditLoginFailed, ip, userAgent, "user not found: "+req.Username)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	now := time.Now()
	if user.IsLocked(now) {
		s.audit.LogFailure(ctx, &user.ID, models.AuditLoginFailed, ip, userAgent, "account locked")
		return nil, ErrAccountLocked
	}
	if user.Status == models.UserStatusLocked {
		// Lock window elapsed: the slate is wiped, failures count from zero.
		user.Status = models.UserStatusActive
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}
	if user.Status == models.UserStatusDisabled {
		s.audit.LogFailure(ctx, &user.ID, models.AuditLoginFailed, ip, userAgent, "account disabled")
		return nil, ErrAccountDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordFailedAttempt(ctx, user, now)
		s.audit.LogFailure(ctx, &user.ID, models.AuditLoginFailed, ip, userAgent,
			fmt.Sprintf("invalid password, attempt %d", user.FailedLoginAttempts))
		return nil, ErrInvalidCredentials
	}

	user.Status = models.UserStatusActive
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.LastLoginIP = ip
	if err := s.users.UpdateLoginState(ctx, user); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshValue, refreshToken, err := s.tokens.IssueRefreshToken(ctx, user.ID, req.DeviceInfo, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if _, err := s.sessions.CreateSession(ctx, user.ID, refreshToken.ID, req.DeviceInfo, ip, userAgent); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.audit.LogSuccess(ctx, &user.ID, models.AuditLogin, ip, userAgent)
	s.log.Infow("user logged in", "userID", user.ID, "username", user.Username, "ip", ip)

	return s.buildAuthResponse(user, accessToken, refreshValue), nil
}

// Refresh rotates the presented refresh token and issues a fresh access
// token. The device session survives: it is rebound to the successor token
// and its last access time is bumped.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*models.AuthResponse, error) {
	newValue, newToken, oldToken, err := s.tokens.RotateRefreshToken(ctx, refreshToken, ip, userAgent)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, newToken.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user, time.Now())
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	if err := s.sessions.Touch(ctx, oldToken.ID, newToken.ID); err != nil {
		s.log.Warnw("failed to touch session after rotation", "userID", user.ID, "error", err)
	}

	if oldToken.IPAddress != "" && oldToken.IPAddress != ip {
		s.webhook.NotifyIPChange(ctx, user.ID, oldToken.IPAddress, ip, userAgent)
	}

	s.audit.LogSuccess(ctx, &user.ID, models.AuditTokenRefresh, ip, userAgent)

	return s.buildAuthResponse(user, accessToken, newValue), nil
}

// Logout revokes the presented refresh token, deactivates its session and
// blacklists the paired access token's jti. The access token is parsed
// unverified so an already-expired token still gets its jti recorded.
func (s *AuthService) Logout(ctx context.Context, refreshToken, accessToken, ip, userAgent string) error {
	token, err := s.tokens.LookupRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}

	if err := s.tokens.RevokeRefreshToken(ctx, token.ID, reasonUserLogout); err != nil {
		return err
	}

	if err := s.sessions.Deactivate(ctx, token.ID); err != nil {
		s.log.Warnw("failed to deactivate session on logout", "userID", token.UserID, "error", err)
	}

	if accessToken != "" {
		claims, err := s.tokens.GetClaimsUnverified(accessToken)
		if err != nil {
			s.log.Warnw("could not blacklist access token", "error", err)
		} else if err := s.tokens.BlacklistAccessToken(ctx, claims.ID, token.UserID, claims.ExpiresAt.Time, reasonUserLogout); err != nil {
			return err
		}
	}

	s.audit.LogSuccess(ctx, &token.UserID, models.AuditLogout, ip, userAgent)
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, userID int64, ip, userAgent string) error {
	if _, err := s.tokens.RevokeAllUserTokens(ctx, userID, reasonLogoutAll); err != nil {
		return err
	}
	if _, err := s.sessions.DeactivateAll(ctx, userID); err != nil {
		return err
	}
	s.audit.LogSuccess(ctx, &userID, models.AuditLogoutAll, ip, userAgent)
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest, ip, userAgent string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		s.audit.LogFailure(ctx, &userID, models.AuditPasswordChange, ip, userAgent, "invalid current password")
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash), time.Now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if req.LogoutAllSessions {
		if _, err := s.tokens.RevokeAllUserTokens(ctx, userID, reasonPasswordChanged); err != nil {
			return err
		}
		if _, err := s.sessions.DeactivateAll(ctx, userID); err != nil {
			return err
		}
	}

	s.audit.LogSuccess(ctx, &userID, models.AuditPasswordChange, ip, userAgent)
	return nil
}

// ForceLogout is the admin path: revoke everything the target user holds.
func (s *AuthService) ForceLogout(ctx context.Context, adminID, targetUserID int64, ip, userAgent string) error {
	if _, err := s.tokens.RevokeAllUserTokens(ctx, targetUserID, reasonForcedLogout); err != nil {
		return err
	}
	if _, err := s.sessions.DeactivateAll(ctx, targetUserID); err != nil {
		return err
	}
	s.audit.LogAdminAction(ctx, adminID, targetUserID, models.AuditForceLogout, ip, userAgent)
	return nil
}

// SetUserStatus flips the account between ACTIVE, LOCKED and DISABLED.
// Disabling an account also kicks out every live session; a stale access
// token dies with its blacklisted jti, a refresh attempt finds the token
// revoked.
func (s *AuthService) SetUserStatus(ctx context.Context, adminID, targetUserID int64, status models.UserStatus, ip, userAgent string) error {
	switch status {
	case models.UserStatusActive, models.UserStatusLocked, models.UserStatusDisabled:
	default:
		return ErrInvalidStatus
	}

	if err := s.users.UpdateUserStatus(ctx, targetUserID, status); err != nil {
		return err
	}

	if status == models.UserStatusDisabled {
		if _, err := s.tokens.RevokeAllUserTokens(ctx, targetUserID, reasonAccountDisabled); err != nil {
			return err
		}
		if _, err := s.sessions.DeactivateAll(ctx, targetUserID); err != nil {
			return err
		}
	}

	s.audit.LogAdminAction(ctx, adminID, targetUserID, models.AuditStatusChange, ip, userAgent)
	s.log.Infow("User status changed", "userID", targetUserID, "status", status, "adminID", adminID)
	return nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *AuthService) ListAuditLogs(ctx context.Context, userID *int64, limit int) ([]models.AuditRecord, error) {
	return s.audit.List(ctx, userID, limit)
}

func (s *AuthService) ListSessions(ctx context.Context, userID int64) ([]models.UserSession, error) {
	return s.sessions.ListActive(ctx, userID)
}

// RevokeSession kills a single device session owned by the caller. Sessions
// belonging to other users are indistinguishable from missing ones.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID int64, ip, userAgent string) error {
	sessions, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	var target *models.UserSession
	for i := range sessions {
		if sessions[i].ID == sessionID {
			target = &sessions[i]
			break
		}
	}
	if target == nil {
		return storage.ErrSessionNotFound
	}

	if err := s.tokens.RevokeRefreshToken(ctx, target.RefreshTokenID, reasonSessionRevoked); err != nil && !errors.Is(err, ErrRefreshTokenRevoked) {
		return err
	}
	if err := s.sessions.Deactivate(ctx, target.RefreshTokenID); err != nil {
		return err
	}

	s.audit.LogSuccess(ctx, &userID, models.AuditLogout, ip, userAgent)
	return nil
}

func (s *AuthService) recordFailedAttempt(ctx context.Context, user *models.User, now time.Time) {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= s.lockout.MaxFailedLogins {
		until := now.Add(s.lockout.LockoutDuration)
		user.Status = models.UserStatusLocked
		user.LockedUntil = &until
		s.log.Warnw("account locked after repeated failures", "userID", user.ID, "until", until)
	}
	if err := s.users.UpdateLoginState(ctx, user); err != nil {
		s.log.Errorw("failed to persist login attempt counter", "userID", user.ID, "error", err)
	}
}

func (s *AuthService) buildAuthResponse(user *models.User, accessToken, refreshToken string) *models.AuthResponse {
	return &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Roles:        user.Roles,
		Permissions:  user.Permissions,
	}
}
