package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/streamworks/edge-auth/internal/models"
	"github.com/streamworks/edge-auth/internal/storage"
)

// EnsureAdminUser seeds the administrator account on first start. The
// credentials come from ADMIN_USERNAME / ADMIN_PASSWORD; when unset nothing
// is created.
func EnsureAdminUser(ctx context.Context, users storage.UserRepository, log *zap.SugaredLogger) error {
	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		log.Debug("admin bootstrap skipped, credentials not configured")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := &models.User{
		Username:     username,
		Email:        os.Getenv("ADMIN_EMAIL"),
		PasswordHash: string(hash),
		Status:       models.UserStatusActive,
		Roles:        []string{"ADMIN"},
		Permissions:  []string{"user:manage", "token:manage"},
	}

	created, err := users.CreateUser(ctx, admin)
	if errors.Is(err, storage.ErrUserExists) {
		log.Debugw("admin user already present", "username", username)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	log.Infow("admin user created", "userID", created.ID, "username", created.Username)
	return nil
}
