package service

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/audit"
	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/ids"
	"github.com/qdmz/webchaxun/internal/models"
	"github.com/qdmz/webchaxun/internal/security"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

type UserService struct {
	users    UserStore
	files    FileStore
	objects  ObjectStore
	hasher   *security.PasswordHasher
	sessions SessionRevoker
	audit    audit.Recorder
	now      func() time.Time
	log      zerolog.Logger
}

func NewUserService(
	users UserStore,
	files FileStore,
	objects ObjectStore,
	hasher *security.PasswordHasher,
	sessions SessionRevoker,
	recorder audit.Recorder,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		files:    files,
		objects:  objects,
		hasher:   hasher,
		sessions: sessions,
		audit:    recorder,
		now:      time.Now,
		log:      log,
	}
}

type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     models.UserRole
}

func (s *UserService) Create(ctx context.Context, actor *models.Session, input CreateUserInput) (models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Role == "" {
		input.Role = models.UserRoleUser
	}

	if !usernamePattern.MatchString(input.Username) {
		return models.User{}, common.Invalid("username", "3-32 letters, digits or underscores")
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return models.User{}, common.Invalid("email", "invalid email address")
	}
	if !input.Role.Valid() {
		return models.User{}, common.Invalid("role", "unknown role")
	}
	if !security.IsStrongPassword(input.Password) {
		return models.User{}, common.Invalid("password", "password must be 8 to 72 bytes with upper-case, lower-case and digit")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return models.User{}, err
	}

	now := s.now()
	user := models.User{
		ID:           ids.New(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, err
	}

	s.record(ctx, actor, "create_user", user.Username)
	return user, nil
}

type UserList struct {
	Users []models.User `json:"users"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
}

func (s *UserService) List(ctx context.Context, page Page) (UserList, error) {
	page = page.normalize()
	users, err := s.users.List(ctx, page.PerPage, page.offset())
	if err != nil {
		return UserList{}, err
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return UserList{}, err
	}
	return UserList{Users: users, Total: total, Page: page.Number}, nil
}

func (s *UserService) SetStatus(ctx context.Context, actor *models.Session, id string, status models.UserStatus) error {
	if !status.Valid() {
		return common.Invalid("status", "unknown status")
	}
	if id == actor.UserID && status != models.UserStatusActive {
		return common.Invalid("id", "you cannot deactivate your own account")
	}
	if err := s.users.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	if status != models.UserStatusActive {
		if err := s.sessions.Revoke(ctx, id); err != nil {
			return err
		}
	}
	s.record(ctx, actor, "set_status", fmt.Sprintf("%s=%s", id, status))
	return nil
}

func (s *UserService) SetRole(ctx context.Context, actor *models.Session, id string, role models.UserRole) error {
	if !role.Valid() {
		return common.Invalid("role", "unknown role")
	}
	if id == actor.UserID && role != actor.Role {
		return common.Invalid("id", "you cannot change your own role")
	}
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return err
	}
	// Sessions carry the role they logged in with.
	if err := s.sessions.Revoke(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "set_role", fmt.Sprintf("%s=%s", id, role))
	return nil
}

// Delete removes the user, their file rows by cascade and their stored
// objects.
func (s *UserService) Delete(ctx context.Context, actor *models.Session, id string) error {
	if id == actor.UserID {
		return common.Invalid("id", "you cannot delete your own account")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	keys, err := s.files.ObjectKeysByUploader(ctx, id)
	if err != nil {
		return fmt.Errorf("list user files: %w", err)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.objects.Remove(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("object_key", key).Msg("remove orphaned object failed")
		}
	}
	if err := s.sessions.Revoke(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "delete_user", user.Username)
	return nil
}

func (s *UserService) record(ctx context.Context, actor *models.Session, action, details string) {
	s.audit.Record(ctx, models.AuditEvent{
		Kind:       models.AuditUserAction,
		Level:      "info",
		UserID:     actor.UserID,
		Username:   actor.Username,
		Action:     action,
		Details:    details,
		IPAddress:  actor.IPAddress,
		OccurredAt: s.now(),
	})
}
