package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage/memory"
	"github.com/streamworks/edge-auth/internal/util"
)

func newTestTokenService(t *testing.T) (*TokenService, *memory.Store, *memory.BlacklistCache) {
	t.Helper()
	store := memory.NewStore()
	cache := memory.NewBlacklistCache()
	cfg := &util.TokenConfig{
		JwtSecretKey: []byte("test-secret-key-for-hs512"),
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
	}
	return NewTokenService(cfg, store, store, cache, zap.NewNop().Sugar()), store, cache
}

func testUser() *models.User {
	return &models.User{
		ID:          42,
		Username:    "alice",
		Roles:       []string{"USER", "MODERATOR"},
		Permissions: []string{"movie:read"},
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	ts, _, _ := newTestTokenService(t)

	signed, jti, err := ts.IssueAccessToken(testUser(), time.Now())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if jti == "" {
		t.Fatal("expected a non-empty jti")
	}

	claims, err := ts.ValidateAccessToken(context.Background(), signed)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.ID != jti {
		t.Errorf("jti = %q, want %q", claims.ID, jti)
	}
	if claims.Username != "alice" {
		t.Errorf("username = %q, want alice", claims.Username)
	}
	if claims.TokenType != models.TokenTypeAccess {
		t.Errorf("token type = %q, want %q", claims.TokenType, models.TokenTypeAccess)
	}
	userID, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
	if len(claims.Roles) != 2 || claims.Roles[1] != "MODERATOR" {
		t.Errorf("roles = %v", claims.Roles)
	}
}

func TestValidateAccessTokenExpired(t *testing.T) {
	ts, _, _ := newTestTokenService(t)

	signed, _, err := ts.IssueAccessToken(testUser(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	if _, err := ts.ValidateAccessToken(context.Background(), signed); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	ts, _, _ := newTestTokenService(t)

	other := NewTokenService(&util.TokenConfig{
		JwtSecretKey: []byte("a-different-secret"),
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
	}, memory.NewStore(), memory.NewStore(), memory.NewBlacklistCache(), zap.NewNop().Sugar())

	signed, _, err := other.IssueAccessToken(testUser(), time.Now())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	if _, err := ts.ValidateAccessToken(context.Background(), signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateAccessTokenMalformed(t *testing.T) {
	ts, _, _ := newTestTokenService(t)

	if _, err := ts.ValidateAccessToken(context.Background(), "not-a-jwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestRefreshTokenRotationRejectsReplay(t *testing.T) {
	ts, _, _ := newTestTokenService(t)
	ctx := context.Background()

	oldValue, oldToken, err := ts.IssueRefreshToken(ctx, 42, "iPhone 15", "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	newValue, newToken, rotatedFrom, err := ts.RotateRefreshToken(ctx, oldValue, "10.0.0.2", "ua")
	if err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}
	if rotatedFrom.ID != oldToken.ID {
		t.Errorf("rotated from token %d, want %d", rotatedFrom.ID, oldToken.ID)
	}
	if newToken.UserID != 42 || newToken.DeviceInfo != "iPhone 15" {
		t.Errorf("successor lost identity: %+v", newToken)
	}
	if newValue == oldValue {
		t.Fatal("rotation must mint a fresh value")
	}

	// The replaced value must never validate again.
	if _, _, _, err := ts.RotateRefreshToken(ctx, oldValue, "10.0.0.3", "ua"); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("replayed rotation: expected ErrRefreshTokenRevoked, got %v", err)
	}
	if _, err := ts.LookupRefreshToken(ctx, oldValue); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("replayed lookup: expected ErrRefreshTokenRevoked, got %v", err)
	}

	// The successor still works.
	if _, err := ts.LookupRefreshToken(ctx, newValue); err != nil {
		t.Fatalf("successor lookup: %v", err)
	}
}

func TestLookupRefreshTokenUnknownValue(t *testing.T) {
	ts, _, _ := newTestTokenService(t)

	if _, err := ts.LookupRefreshToken(context.Background(), "never-issued"); !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatalf("expected ErrRefreshTokenInvalid, got %v", err)
	}
}

func TestBlacklistRejectsAccessToken(t *testing.T) {
	ts, _, _ := newTestTokenService(t)
	ctx := context.Background()

	signed, jti, err := ts.IssueAccessToken(testUser(), time.Now())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	if err := ts.BlacklistAccessToken(ctx, jti, 42, time.Now().Add(15*time.Minute), "logout"); err != nil {
		t.Fatalf("BlacklistAccessToken: %v", err)
	}

	if _, err := ts.ValidateAccessToken(ctx, signed); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestValidateFailsOpenWhenCacheDown(t *testing.T) {
	ts, _, cache := newTestTokenService(t)
	ctx := context.Background()

	signed, jti, err := ts.IssueAccessToken(testUser(), time.Now())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if err := ts.BlacklistAccessToken(ctx, jti, 42, time.Now().Add(15*time.Minute), "logout"); err != nil {
		t.Fatalf("BlacklistAccessToken: %v", err)
	}

	cache.Err = errors.New("connection refused")

	claims, err := ts.ValidateAccessToken(ctx, signed)
	if err != nil {
		t.Fatalf("expected fail-open validation, got %v", err)
	}
	if claims.ID != jti {
		t.Errorf("jti = %q, want %q", claims.ID, jti)
	}
}

func TestBlacklistSurvivesCacheFailure(t *testing.T) {
	ts, store, cache := newTestTokenService(t)
	ctx := context.Background()
	cache.Err = errors.New("connection refused")

	if err := ts.BlacklistAccessToken(ctx, "some-jti", 42, time.Now().Add(time.Minute), "logout"); err != nil {
		t.Fatalf("durable write must not depend on the cache: %v", err)
	}

	listed, err := store.IsBlacklisted(ctx, "some-jti")
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if !listed {
		t.Fatal("durable blacklist entry missing")
	}
}

func TestCleanupExpiredTokensIsIdempotent(t *testing.T) {
	ts, store, _ := newTestTokenService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	if _, err := store.CreateRefreshToken(ctx, &models.RefreshToken{
		TokenHash: HashTokenValue("stale"),
		UserID:    1,
		ExpiresAt: past,
	}); err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	if err := store.AddBlacklistEntry(ctx, &models.BlacklistEntry{
		JTI:       "stale-jti",
		UserID:    1,
		TokenType: models.TokenTypeAccess,
		ExpiresAt: past,
	}); err != nil {
		t.Fatalf("AddBlacklistEntry: %v", err)
	}
	if _, _, err := ts.IssueRefreshToken(ctx, 1, "dev", "ip", "ua"); err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	tokens, entries, err := ts.CleanupExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredTokens: %v", err)
	}
	if tokens != 1 || entries != 1 {
		t.Fatalf("first sweep removed (%d, %d), want (1, 1)", tokens, entries)
	}

	tokens, entries, err = ts.CleanupExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredTokens: %v", err)
	}
	if tokens != 0 || entries != 0 {
		t.Fatalf("second sweep removed (%d, %d), want (0, 0)", tokens, entries)
	}
}

func TestGetClaimsUnverifiedOnExpiredToken(t *testing.T) {
	ts, _, _ := newTestTokenService(t)

	signed, jti, err := ts.IssueAccessToken(testUser(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	claims, err := ts.GetClaimsUnverified(signed)
	if err != nil {
		t.Fatalf("GetClaimsUnverified: %v", err)
	}
	if claims.ID != jti {
		t.Errorf("jti = %q, want %q", claims.ID, jti)
	}
}
