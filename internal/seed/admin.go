// Package seed creates the initial administrator on a fresh database.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qdmz/webchaxun/internal/ids"
	"github.com/qdmz/webchaxun/internal/models"
	"github.com/qdmz/webchaxun/internal/repository"
	"github.com/qdmz/webchaxun/internal/security"
)

var ErrWeakPassword = errors.New("admin password too weak")

type userStore interface {
	FindByUsername(ctx context.Context, username string) (models.User, error)
	Create(ctx context.Context, user models.User) error
}

type Admin struct {
	Username string
	Email    string
	Password string
}

type AdminSeeder struct {
	users  userStore
	hasher *security.PasswordHasher
	now    func() time.Time
}

func NewAdminSeeder(users userStore, hasher *security.PasswordHasher) *AdminSeeder {
	return &AdminSeeder{users: users, hasher: hasher, now: time.Now}
}

// Seed creates an active admin unless the username is taken. It reports
// whether a row was written.
func (s *AdminSeeder) Seed(ctx context.Context, admin Admin) (bool, error) {
	admin.Username = strings.TrimSpace(admin.Username)
	if admin.Username == "" {
		return false, errors.New("admin username required")
	}

	_, err := s.users.FindByUsername(ctx, admin.Username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return false, fmt.Errorf("lookup admin: %w", err)
	}

	if !security.IsStrongPassword(admin.Password) {
		return false, ErrWeakPassword
	}
	hash, err := s.hasher.Hash(admin.Password)
	if err != nil {
		return false, err
	}

	email := strings.ToLower(strings.TrimSpace(admin.Email))
	if email == "" {
		email = admin.Username + "@localhost"
	}

	now := s.now()
	err = s.users.Create(ctx, models.User{
		ID:           ids.New(),
		Username:     admin.Username,
		Email:        email,
		PasswordHash: hash,
		Role:         models.UserRoleAdmin,
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
