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

type authFixture struct {
	auth   *AuthService
	tokens *TokenService
	store  *memory.Store
	cache  *memory.BlacklistCache
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	logger := zap.NewNop().Sugar()
	store := memory.NewStore()
	cache := memory.NewBlacklistCache()

	tokens := NewTokenService(&util.TokenConfig{
		JwtSecretKey: []byte("test-secret-key-for-hs512"),
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
	}, store, store, cache, logger)

	auth := NewAuthService(
		store,
		tokens,
		NewSessionRegistry(store, logger),
		NewAuditService(store, logger),
		NewWebhookService(logger, ""),
		&util.LockoutConfig{MaxFailedLogins: 5, LockoutDuration: 15 * time.Minute},
		logger,
	)

	return &authFixture{auth: auth, tokens: tokens, store: store, cache: cache}
}

func (f *authFixture) register(t *testing.T, username, password string) *models.User {
	t.Helper()
	user, err := f.auth.Register(context.Background(), models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	}, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return user
}

func (f *authFixture) login(t *testing.T, username, password string) *models.AuthResponse {
	t.Helper()
	resp, err := f.auth.Login(context.Background(), models.LoginRequest{
		Username:   username,
		Password:   password,
		DeviceInfo: "test-device",
	}, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return resp
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", "p4ssword!234")

	_, err := f.auth.Register(context.Background(), models.RegisterRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "p4ssword!234",
	}, "10.0.0.1", "test-agent")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLoginIssuesTokensAndSession(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", "p4ssword!234")
	resp := f.login(t, "alice", "p4ssword!234")

	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens in the response")
	}
	if resp.UserID != user.ID {
		t.Errorf("userID = %d, want %d", resp.UserID, user.ID)
	}

	claims, err := f.tokens.ValidateAccessToken(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("issued access token does not validate: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("username = %q", claims.Username)
	}

	sessions, err := f.auth.ListSessions(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	if sessions[0].DeviceInfo != "test-device" || !sessions[0].IsActive {
		t.Errorf("unexpected session: %+v", sessions[0])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", "p4ssword!234")

	_, err := f.auth.Login(context.Background(), models.LoginRequest{
		Username: "alice",
		Password: "wrong",
	}, "10.0.0.1", "test-agent")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownUserIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.auth.Login(context.Background(), models.LoginRequest{
		Username: "ghost",
		Password: "whatever",
	}, "10.0.0.1", "test-agent")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAccountLocksAfterRepeatedFailures(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", "p4ssword!234")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.auth.Login(ctx, models.LoginRequest{Username: "alice", Password: "wrong"}, "10.0.0.1", "ua")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Locked now, even with the correct password.
	_, err := f.auth.Login(ctx, models.LoginRequest{Username: "alice", Password: "p4ssword!234"}, "10.0.0.1", "ua")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestElapsedLockWindowResetsFailureCounter(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", "p4ssword!234")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.auth.Login(ctx, models.LoginRequest{Username: "alice", Password: "wrong"}, "10.0.0.1", "ua")
	}

	// Backdate the lock so the window has already elapsed.
	stored, err := f.store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	stored.LockedUntil = &past
	if err := f.store.UpdateLoginState(ctx, stored); err != nil {
		t.Fatalf("UpdateLoginState: %v", err)
	}

	// A single post-window failure counts from zero, it must not re-lock.
	_, err = f.auth.Login(ctx, models.LoginRequest{Username: "alice", Password: "wrong"}, "10.0.0.1", "ua")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("post-window failure: expected ErrInvalidCredentials, got %v", err)
	}

	f.login(t, "alice", "p4ssword!234")

	stored, err = f.store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil {
		t.Fatalf("lockout state not cleared: attempts=%d lockedUntil=%v", stored.FailedLoginAttempts, stored.LockedUntil)
	}
}

func TestSuccessfulLoginResetsFailureCounter(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", "p4ssword!234")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.auth.Login(ctx, models.LoginRequest{Username: "alice", Password: "wrong"}, "10.0.0.1", "ua")
	}
	f.login(t, "alice", "p4ssword!234")

	stored, err := f.store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if stored.FailedLoginAttempts != 0 {
		t.Fatalf("failure counter = %d, want 0", stored.FailedLoginAttempts)
	}

	// The reset counter means five more failures are needed to lock.
	_, err = f.auth.Login(ctx, models.LoginRequest{Username: "alice", Password: "wrong"}, "10.0.0.1", "ua")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshRotatesAndKeepsSession(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", "p4ssword!234")
	resp := f.login(t, "alice", "p4ssword!234")
	ctx := context.Background()

	sessionsBefore, _ := f.auth.ListSessions(ctx, user.ID)
	if len(sessionsBefore) != 1 {
		t.Fatalf("expected one session, got %d", len(sessionsBefore))
	}

	refreshed, err := f.auth.Refresh(ctx, resp.RefreshToken, "10.0.0.2", "test-agent")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.RefreshToken == resp.RefreshToken {
		t.Fatal("refresh must rotate the token value")
	}

	// Same session row, rebound to the successor token.
	sessionsAfter, _ := f.auth.ListSessions(ctx, user.ID)
	if len(sessionsAfter) != 1 {
		t.Fatalf("expected one session after refresh, got %d", len(sessionsAfter))
	}
	if sessionsAfter[0].ID != sessionsBefore[0].ID {
		t.Errorf("session identity changed across rotation: %d -> %d", sessionsBefore[0].ID, sessionsAfter[0].ID)
	}

	// The pre-rotation value is burned.
	if _, err := f.auth.Refresh(ctx, resp.RefreshToken, "10.0.0.2", "test-agent"); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked, got %v", err)
	}
}

func TestLogoutRevokesEverything(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", "p4ssword!234")
	resp := f.login(t, "alice", "p4ssword!234")
	ctx := context.Background()

	if err := f.auth.Logout(ctx, resp.RefreshToken, resp.AccessToken, "10.0.0.1", "ua"); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := f.auth.Refresh(ctx, resp.RefreshToken, "10.0.0.1", "ua"); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("refresh after logout: expected ErrRefreshTokenRevoked, got %v", err)
	}
	if _, err := f.tokens.ValidateAccessToken(ctx, resp.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("access token after logout: expected ErrTokenRevoked, got %v", err)
	}

	sessions, _ := f.auth.ListSessions(ctx, user.ID)
	if len(sessions) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(sessions))
	}
}

func TestLogoutAllTerminatesEveryDevice(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", "p4ssword!234")
	first := f.login(t, "alice", "p4ssword!234")
	second := f.login(t, "alice", "p4ssword!234")
	ctx := context.Background()

	if err := f.auth.LogoutAll(ctx, user.ID, "10.0.0.1", "ua"); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}

	for i, token := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := f.auth.Refresh(ctx, token, "10.0.0.1", "ua"); !errors.Is(err, ErrRefreshTokenRevoked) {
			t.Fatalf("device %d: expected ErrRefreshTokenRevoked, got %v", i, err)
		}
	}
	sessions, _ := f.auth.ListSessions(ctx, user.ID)
	if len(sessions) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(sessions))
	}
}

func TestChangePasswordCanKeepSessions(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", "p4ssword!234")
	resp := f.login(t, "alice", "p4ssword!234")
	ctx := context.Background()

	err := f.auth.ChangePassword(ctx, user.ID, models.ChangePasswordRequest{
		CurrentPassword: "p4ssword!234",
		NewPassword:     "n3w-p4ssword!",
	}, "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := f.auth.Refresh(ctx, resp.RefreshToken, "10.0.0.1", "ua"); err != nil {
		t.Fatalf("session should survive a password change without logout_all_sessions: %v", err)
	}
	f.login(t, "alice", "n3w-p4ssword!")
}

func TestChangePasswordLogoutAllSessions(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", "p4ssword!234")
	resp := f.login(t, "alice", "p4ssword!234")
	ctx := context.Background()

	err := f.auth.ChangePassword(ctx, user.ID, models.ChangePasswordRequest{
		CurrentPassword:   "p4ssword!234",
		NewPassword:       "n3w-p4ssword!",
		LogoutAllSessions: true,
	}, "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := f.auth.Refresh(ctx, resp.RefreshToken, "10.0.0.1", "ua"); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked, got %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", "p4ssword!234")

	err := f.auth.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "n3w-p4ssword!",
	}, "10.0.0.1", "ua")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestForceLogout(t *testing.T) {
	f := newAuthFixture(t)
	admin := f.register(t, "admin", "adm1n-p4ss!!")
	user := f.register(t, "alice", "p4ssword!234")
	resp := f.login(t, "alice", "p4ssword!234")
	ctx := context.Background()

	if err := f.auth.ForceLogout(ctx, admin.ID, user.ID, "10.0.0.9", "ua"); err != nil {
		t.Fatalf("ForceLogout: %v", err)
	}

	if _, err := f.auth.Refresh(ctx, resp.RefreshToken, "10.0.0.1", "ua"); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked, got %v", err)
	}
}

func TestRevokeSessionScopedToOwner(t *testing.T) {
	f := newAuthFixture(t)
	alice := f.register(t, "alice", "p4ssword!234")
	bob := f.register(t, "bob", "p4ssword!567")
	f.login(t, "alice", "p4ssword!234")
	bobResp := f.login(t, "bob", "p4ssword!567")
	ctx := context.Background()

	bobSessions, _ := f.auth.ListSessions(ctx, bob.ID)
	if len(bobSessions) != 1 {
		t.Fatalf("expected one bob session, got %d", len(bobSessions))
	}

	// Alice cannot revoke bob's session.
	err := f.auth.RevokeSession(ctx, alice.ID, bobSessions[0].ID, "10.0.0.1", "ua")
	if err == nil {
		t.Fatal("expected an error revoking another user's session")
	}

	if err := f.auth.RevokeSession(ctx, bob.ID, bobSessions[0].ID, "10.0.0.2", "ua"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, err := f.auth.Refresh(ctx, bobResp.RefreshToken, "10.0.0.2", "ua"); !errors.Is(err, ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked, got %v", err)
	}
}

func TestAuditTrailRecordsLoginOutcomes(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", "p4ssword!234")
	ctx := context.Background()

	f.auth.Login(ctx, models.LoginRequest{Username: "alice", Password: "wrong"}, "10.0.0.1", "ua")
	f.login(t, "alice", "p4ssword!234")

	var failed, succeeded int
	for _, rec := range f.store.AuditRecords() {
		switch rec.Action {
		case models.AuditLoginFailed:
			failed++
		case models.AuditLogin:
			succeeded++
		}
	}
	if failed != 1 || succeeded != 1 {
		t.Fatalf("audit trail = (%d failed, %d ok), want (1, 1)", failed, succeeded)
	}
}
