package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/audit"
	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/models"
	"github.com/qdmz/webchaxun/internal/repository"
	"github.com/qdmz/webchaxun/internal/security"
	"github.com/qdmz/webchaxun/internal/session"
)

type AuthService struct {
	users    UserStore
	hasher   *security.PasswordHasher
	throttle *security.LoginThrottle
	sessions *session.Manager
	audit    audit.Recorder
	now      func() time.Time
	log      zerolog.Logger
}

func NewAuthService(
	users UserStore,
	hasher *security.PasswordHasher,
	throttle *security.LoginThrottle,
	sessions *session.Manager,
	recorder audit.Recorder,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		hasher:   hasher,
		throttle: throttle,
		sessions: sessions,
		audit:    recorder,
		now:      time.Now,
		log:      log,
	}
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
}

// Login verifies the credentials and, on success, binds the user to sess
// under a fresh session id. Each call reserves an attempt in the throttle
// before any password is checked, so no more than the limit of guesses per
// window reach verification however many requests run in parallel.
func (s *AuthService) Login(ctx context.Context, sess *models.Session, input LoginInput) (models.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return models.User{}, common.Invalid("", "username and password are required")
	}

	attempt, err := s.throttle.Reserve(ctx, username)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.FindActiveByUsername(ctx, username)
	if errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, s.fail(ctx, username, input.IPAddress, attempt, "user not found")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return models.User{}, s.fail(ctx, username, input.IPAddress, attempt, "unreadable hash")
	}
	if !ok {
		return models.User{}, s.fail(ctx, username, input.IPAddress, attempt, "wrong password")
	}

	s.rehash(ctx, user, input.Password)

	now := s.now()
	sess.UserID = user.ID
	sess.Username = user.Username
	sess.Role = user.Role
	sess.LoginTime = now
	if err := s.sessions.Regenerate(ctx, sess); err != nil {
		return models.User{}, fmt.Errorf("regenerate session: %w", err)
	}

	if err := s.throttle.Clear(ctx, username); err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("clear login attempts failed")
	}

	s.audit.Record(ctx, models.AuditEvent{
		Kind:       models.AuditUserAction,
		Level:      "info",
		UserID:     user.ID,
		Username:   user.Username,
		Action:     "login",
		IPAddress:  input.IPAddress,
		OccurredAt: now,
	})
	return user, nil
}

// fail logs and audits a rejected attempt. The attempt was already counted
// by Reserve.
func (s *AuthService) fail(ctx context.Context, username, ip string, attempts int64, reason string) error {
	s.log.Warn().
		Str("username", username).
		Str("ip", ip).
		Int64("attempts", attempts).
		Msg("login failed: " + reason)
	s.audit.Record(ctx, models.AuditEvent{
		Kind:       models.AuditSystemEvent,
		Level:      "warning",
		Username:   username,
		Action:     "login_failed",
		Details:    reason,
		IPAddress:  ip,
		OccurredAt: s.now(),
	})
	return common.ErrInvalidCredentials
}

// rehash upgrades a hash made with older parameters. The login result
// does not depend on it.
func (s *AuthService) rehash(ctx context.Context, user models.User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("rehash password failed")
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("store rehashed password failed")
		return
	}
	s.log.Info().Str("user_id", user.ID).Msg("password hash upgraded")
}

// Logout drops the identity and moves the client to a new anonymous
// session. The old session record is destroyed.
func (s *AuthService) Logout(ctx context.Context, sess *models.Session, ip string) error {
	if !sess.Authenticated() {
		return nil
	}
	event := models.AuditEvent{
		Kind:       models.AuditUserAction,
		Level:      "info",
		UserID:     sess.UserID,
		Username:   sess.Username,
		Action:     "logout",
		IPAddress:  ip,
		OccurredAt: s.now(),
	}
	sess.ClearIdentity()
	if err := s.sessions.Regenerate(ctx, sess); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	s.audit.Record(ctx, event)
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, sess *models.Session, current, next string) error {
	if !sess.Authenticated() {
		return common.ErrPermissionDenied
	}
	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return common.Invalid("currentPassword", "current password is incorrect")
	}
	if !security.IsStrongPassword(next) {
		return common.Invalid("newPassword", "password must be 8 to 72 bytes with upper-case, lower-case and digit")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := s.sessions.Regenerate(ctx, sess); err != nil {
		return fmt.Errorf("regenerate session: %w", err)
	}

	s.audit.Record(ctx, models.AuditEvent{
		Kind:       models.AuditUserAction,
		Level:      "info",
		UserID:     user.ID,
		Username:   user.Username,
		Action:     "change_password",
		OccurredAt: s.now(),
	})
	return nil
}
