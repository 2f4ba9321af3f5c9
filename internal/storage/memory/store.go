package memory

import (
	"context"
	"sync"
	"time"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
)

// Store is a mutex-guarded implementation of storage.Storage. It backs the
// tests and local development without Postgres.
type Store struct {
	mu sync.RWMutex

	nextUserID    int64
	nextTokenID   int64
	nextSessionID int64
	nextAuditID   int64

	users     map[int64]*models.User
	tokens    map[int64]*models.RefreshToken
	sessions  map[int64]*models.UserSession
	blacklist map[string]*models.BlacklistEntry
	audits    []models.AuditRecord
}

func NewStore() *Store {
	return &Store{
		users:     make(map[int64]*models.User),
		tokens:    make(map[int64]*models.RefreshToken),
		sessions:  make(map[int64]*models.UserSession),
		blacklist: make(map[string]*models.BlacklistEntry),
	}
}

func (s *Store) CreateUser(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return nil, storage.ErrUserExists
		}
	}

	s.nextUserID++
	user.ID = s.nextUserID
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return user, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username || (u.Email != "" && u.Email == username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (s *Store) UpdateLoginState(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.Status = user.Status
	u.FailedLoginAttempts = user.FailedLoginAttempts
	u.LockedUntil = user.LockedUntil
	u.LastLoginAt = user.LastLoginAt
	u.LastLoginIP = user.LastLoginIP
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, userID int64, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &changedAt
	return nil
}

func (s *Store) UpdateUserStatus(_ context.Context, userID int64, status models.UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.Status = status
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (s *Store) CreateRefreshToken(_ context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRefreshTokenLocked(token), nil
}

func (s *Store) createRefreshTokenLocked(token *models.RefreshToken) *models.RefreshToken {
	s.nextTokenID++
	token.ID = s.nextTokenID
	token.CreatedAt = time.Now()
	cp := *token
	s.tokens[token.ID] = &cp
	return token
}

func (s *Store) GetRefreshTokenByHash(_ context.Context, hash string) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storage.ErrRefreshTokenNotFound
}

func (s *Store) RotateRefreshToken(_ context.Context, oldID int64, reason string, next *models.RefreshToken) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tokens[oldID]
	if !ok || old.RevokedAt != nil {
		return nil, storage.ErrRefreshTokenNotFound
	}
	now := time.Now()
	old.RevokedAt = &now
	old.RevokedReason = reason

	return s.createRefreshTokenLocked(next), nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok || t.RevokedAt != nil {
		return storage.ErrRefreshTokenNotFound
	}
	now := time.Now()
	t.RevokedAt = &now
	t.RevokedReason = reason
	return nil
}

func (s *Store) RevokeAllUserTokens(_ context.Context, userID int64, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var n int64
	for _, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			t.RevokedReason = reason
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		if now.After(t.ExpiresAt) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateSession(_ context.Context, session *models.UserSession) (*models.UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSessionID++
	session.ID = s.nextSessionID
	session.IsActive = true
	session.LastAccessAt = time.Now()
	session.CreatedAt = session.LastAccessAt
	cp := *session
	s.sessions[session.ID] = &cp
	return session, nil
}

func (s *Store) GetSessionByRefreshTokenID(_ context.Context, refreshTokenID int64) (*models.UserSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.RefreshTokenID == refreshTokenID {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, storage.ErrSessionNotFound
}

func (s *Store) RebindSession(_ context.Context, oldTokenID, newTokenID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.RefreshTokenID == oldTokenID && sess.IsActive {
			sess.RefreshTokenID = newTokenID
			sess.LastAccessAt = at
		}
	}
	return nil
}

func (s *Store) DeactivateSession(_ context.Context, refreshTokenID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.RefreshTokenID == refreshTokenID {
			sess.IsActive = false
		}
	}
	return nil
}

func (s *Store) DeactivateAllUserSessions(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *Store) ListActiveSessions(_ context.Context, userID int64) ([]models.UserSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.UserSession
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *Store) AddBlacklistEntry(_ context.Context, entry *models.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blacklist[entry.JTI]; ok {
		return nil
	}
	cp := *entry
	cp.CreatedAt = time.Now()
	s.blacklist[entry.JTI] = &cp
	return nil
}

func (s *Store) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blacklist[jti]
	return ok, nil
}

func (s *Store) DeleteExpiredBlacklistEntries(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for jti, e := range s.blacklist {
		if now.After(e.ExpiresAt) {
			delete(s.blacklist, jti)
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendAuditRecord(_ context.Context, rec *models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAuditID++
	rec.ID = s.nextAuditID
	rec.CreatedAt = time.Now()
	s.audits = append(s.audits, *rec)
	return nil
}

func (s *Store) ListAuditRecords(_ context.Context, userID *int64, limit int) ([]models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AuditRecord
	for i := len(s.audits) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.audits[i]
		if userID != nil && (rec.UserID == nil || *rec.UserID != *userID) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// AuditRecords returns a snapshot of everything appended so far.
func (s *Store) AuditRecords() []models.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AuditRecord, len(s.audits))
	copy(out, s.audits)
	return out
}
