package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
	"github.com/streamworks/edge-auth/internal/util"
)

var (
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenInvalid         = errors.New("token signature invalid")
	ErrTokenMalformed       = errors.New("token is malformed")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrRefreshTokenInvalid  = errors.New("refresh token invalid")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrRefreshTokenRevoked  = errors.New("refresh token revoked")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
)

const RevokeReasonRotation = "rotation"

type AccessClaims struct {
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	TokenType   string   `json:"type"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// TokenService owns the full credential lifecycle: it signs and validates
// access tokens, persists and rotates refresh tokens and keeps the
// revocation blacklist. Nothing else writes to those stores.
type TokenService struct {
	jwtSecretKey []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	tokens       storage.RefreshTokenRepository
	blacklist    storage.BlacklistRepository
	cache        storage.BlacklistCache
	log          *zap.SugaredLogger
}

func NewTokenService(
	cfg *util.TokenConfig,
	tokens storage.RefreshTokenRepository,
	blacklist storage.BlacklistRepository,
	cache storage.BlacklistCache,
	log *zap.SugaredLogger,
) *TokenService {
	return &TokenService{
		jwtSecretKey: cfg.JwtSecretKey,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		tokens:       tokens,
		blacklist:    blacklist,
		cache:        cache,
		log:          log,
	}
}

func (ts *TokenService) AccessTTL() time.Duration { return ts.accessTTL }

// IssueAccessToken signs a self-contained HS512 token carrying the user's
// identity, roles and permissions. No side effects beyond signing.
func (ts *TokenService) IssueAccessToken(user *models.User, now time.Time) (string, string, error) {
	jti := uuid.NewString()
	claims := &AccessClaims{
		Username:    user.Username,
		Roles:       user.Roles,
		Permissions: user.Permissions,
		TokenType:   models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.jwtSecretKey)
	if err != nil {
		return "", "", fmt.Errorf("signed string: %w", err)
	}

	return signedToken, jti, nil
}

// IssueRefreshToken persists a new refresh token and returns the opaque value
// alongside the stored row. Only the SHA-256 hash of the value hits the store.
func (ts *TokenService) IssueRefreshToken(ctx context.Context, userID int64, deviceInfo, ip, userAgent string) (string, *models.RefreshToken, error) {
	value, err := newRefreshTokenValue()
	if err != nil {
		return "", nil, err
	}

	token := &models.RefreshToken{
		TokenHash:  HashTokenValue(value),
		UserID:     userID,
		DeviceInfo: deviceInfo,
		IPAddress:  ip,
		UserAgent:  userAgent,
		ExpiresAt:  time.Now().Add(ts.refreshTTL),
	}

	created, err := ts.tokens.CreateRefreshToken(ctx, token)
	if err != nil {
		return "", nil, fmt.Errorf("create refresh token: %w", err)
	}
	return value, created, nil
}

// RotateRefreshToken atomically revokes the presented token and issues its
// successor for the same user and device. The old value never validates
// again: a leaked token replayed after rotation is rejected, which is the
// system's replay-protection guarantee.
func (ts *TokenService) RotateRefreshToken(ctx context.Context, oldValue, ip, userAgent string) (string, *models.RefreshToken, *models.RefreshToken, error) {
	old, err := ts.lookupRefreshToken(ctx, oldValue)
	if err != nil {
		return "", nil, nil, err
	}

	value, err := newRefreshTokenValue()
	if err != nil {
		return "", nil, nil, err
	}

	next := &models.RefreshToken{
		TokenHash:  HashTokenValue(value),
		UserID:     old.UserID,
		DeviceInfo: old.DeviceInfo,
		IPAddress:  ip,
		UserAgent:  userAgent,
		ExpiresAt:  time.Now().Add(ts.refreshTTL),
	}

	created, err := ts.tokens.RotateRefreshToken(ctx, old.ID, RevokeReasonRotation, next)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			// Lost the race against a concurrent rotation or revocation.
			return "", nil, nil, ErrRefreshTokenRevoked
		}
		return "", nil, nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return value, created, old, nil
}

// LookupRefreshToken resolves the opaque value to a live token row, mapping
// terminal states to their taxonomy errors.
func (ts *TokenService) LookupRefreshToken(ctx context.Context, value string) (*models.RefreshToken, error) {
	return ts.lookupRefreshToken(ctx, value)
}

func (ts *TokenService) lookupRefreshToken(ctx context.Context, value string) (*models.RefreshToken, error) {
	token, err := ts.tokens.GetRefreshTokenByHash(ctx, HashTokenValue(value))
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if token.IsRevoked() {
		return nil, ErrRefreshTokenRevoked
	}
	if token.IsExpired(time.Now()) {
		return nil, ErrRefreshTokenExpired
	}
	return token, nil
}

// ValidateAccessToken verifies signature and expiry, then consults the
// blacklist. Blacklist-store unavailability deliberately fails open: the
// token is treated as valid and a warning is recorded, trading perfect
// revocation enforcement for edge availability.
func (ts *TokenService) ValidateAccessToken(ctx context.Context, token string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(util.JWTLeeway),
		jwt.WithExpirationRequired(),
	}

	parsedToken, err := jwt.ParseWithClaims(
		token,
		&AccessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
				return nil, ErrInvalidSigningMethod
			}
			return ts.jwtSecretKey, nil
		},
		opts...,
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenInvalid
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
	}

	claims, ok := parsedToken.Claims.(*AccessClaims)
	if !ok || !parsedToken.Valid || claims.TokenType != models.TokenTypeAccess {
		return nil, ErrTokenInvalid
	}

	isBlacklisted, err := ts.cache.Contains(ctx, claims.ID)
	if err != nil {
		ts.log.Warnw("blacklist store unreachable, failing open", "jti", claims.ID, "error", err)
		return claims, nil
	}
	if isBlacklisted {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// BlacklistAccessToken records the jti durably and mirrors it into the edge
// cache with a TTL matching the token's own expiry. Idempotent on jti.
func (ts *TokenService) BlacklistAccessToken(ctx context.Context, jti string, userID int64, expiresAt time.Time, reason string) error {
	entry := &models.BlacklistEntry{
		JTI:       jti,
		UserID:    userID,
		TokenType: models.TokenTypeAccess,
		ExpiresAt: expiresAt,
		Reason:    reason,
	}
	if err := ts.blacklist.AddBlacklistEntry(ctx, entry); err != nil {
		return fmt.Errorf("blacklist access token: %w", err)
	}

	if err := ts.cache.Put(ctx, jti, reason, time.Until(expiresAt)); err != nil {
		ts.log.Warnw("failed to mirror blacklist entry into cache", "jti", jti, "error", err)
	}
	return nil
}

func (ts *TokenService) RevokeRefreshToken(ctx context.Context, id int64, reason string) error {
	if err := ts.tokens.RevokeRefreshToken(ctx, id, reason); err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return ErrRefreshTokenRevoked
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (ts *TokenService) RevokeAllUserTokens(ctx context.Context, userID int64, reason string) (int64, error) {
	n, err := ts.tokens.RevokeAllUserTokens(ctx, userID, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	ts.log.Infow("revoked refresh tokens", "userID", userID, "count", n, "reason", reason)
	return n, nil
}

// CleanupExpiredTokens sweeps refresh tokens and blacklist entries past their
// expiry. Idempotent; safe to run concurrently with issuance and validation
// since it only removes already-terminal rows.
func (ts *TokenService) CleanupExpiredTokens(ctx context.Context) (int64, int64, error) {
	now := time.Now()

	deletedTokens, err := ts.tokens.DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("cleanup refresh tokens: %w", err)
	}
	deletedEntries, err := ts.blacklist.DeleteExpiredBlacklistEntries(ctx, now)
	if err != nil {
		return deletedTokens, 0, fmt.Errorf("cleanup blacklist: %w", err)
	}

	if deletedTokens > 0 || deletedEntries > 0 {
		ts.log.Infow("cleaned up expired tokens", "refreshTokens", deletedTokens, "blacklistEntries", deletedEntries)
	}
	return deletedTokens, deletedEntries, nil
}

// GetClaimsUnverified extracts claims without verifying the signature. Used
// on logout, where an already-expired access token should still have its jti
// blacklisted.
func (ts *TokenService) GetClaimsUnverified(token string) (*AccessClaims, error) {
	parsedToken, _, err := new(jwt.Parser).ParseUnverified(token, &AccessClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}

	claims, ok := parsedToken.Claims.(*AccessClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func newRefreshTokenValue() (string, error) {
	raw := make([]byte, util.RawTokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func HashTokenValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
