package service

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/models"
	"github.com/qdmz/webchaxun/internal/repository"
)

func newUserService(t *testing.T, users ...models.User) (*UserService, *fakeUsers, *fakeFiles, *fakeObjects, *recordingAudit) {
	t.Helper()
	fu := newFakeUsers(users...)
	ff := newFakeFiles()
	fo := newFakeObjects()
	rec := &recordingAudit{}
	svc := NewUserService(fu, ff, fo, testHasher(bcrypt.MinCost), &fakeRevoker{}, rec, zerolog.Nop())
	return svc, fu, ff, fo, rec
}

var adminSession = &models.Session{ID: "sid", UserID: "u-admin", Username: "admin", Role: models.UserRoleAdmin}

func TestCreateUser(t *testing.T) {
	svc, fu, _, _, rec := newUserService(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, adminSession, CreateUserInput{
		Username: "bob_01",
		Email:    " Bob@Example.com ",
		Password: "Password1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleUser, user.Role)
	assert.Equal(t, models.UserStatusActive, user.Status)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.NotEmpty(t, user.ID)

	stored, err := fu.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword(stored.PasswordHash, []byte("Password1")))
	assert.Equal(t, []string{"create_user"}, rec.actions())

	_, err = svc.Create(ctx, adminSession, CreateUserInput{Username: "bob_01", Email: "other@example.com", Password: "Password1"})
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestCreateUserValidation(t *testing.T) {
	svc, _, _, _, _ := newUserService(t)

	tests := []struct {
		name  string
		input CreateUserInput
		field string
	}{
		{"short username", CreateUserInput{Username: "ab", Email: "a@b.c", Password: "Password1"}, "username"},
		{"bad username", CreateUserInput{Username: "bob smith", Email: "a@b.c", Password: "Password1"}, "username"},
		{"bad email", CreateUserInput{Username: "bob", Email: "nope", Password: "Password1"}, "email"},
		{"bad role", CreateUserInput{Username: "bob", Email: "a@b.c", Password: "Password1", Role: "root"}, "role"},
		{"weak password", CreateUserInput{Username: "bob", Email: "a@b.c", Password: "password"}, "password"},
		{"password too long for bcrypt", CreateUserInput{Username: "bob", Email: "a@b.c", Password: "Password1" + strings.Repeat("x", 64)}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), adminSession, tt.input)
			var verr *common.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestListUsersPaginates(t *testing.T) {
	svc, _, _, _, _ := newUserService(t,
		models.User{ID: "1", Username: "a"},
		models.User{ID: "2", Username: "b"},
		models.User{ID: "3", Username: "c"},
	)

	list, err := svc.List(context.Background(), Page{Number: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 2, list.Page)
	require.Len(t, list.Users, 1)
	assert.Equal(t, "c", list.Users[0].Username)
}

func TestAdminCannotLockThemselvesOut(t *testing.T) {
	admin := models.User{ID: "u-admin", Username: "admin", Role: models.UserRoleAdmin, Status: models.UserStatusActive}
	svc, fu, _, _, _ := newUserService(t, admin)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetStatus(ctx, adminSession, "u-admin", models.UserStatusInactive), common.ErrValidation)
	assert.ErrorIs(t, svc.SetRole(ctx, adminSession, "u-admin", models.UserRoleUser), common.ErrValidation)
	assert.ErrorIs(t, svc.Delete(ctx, adminSession, "u-admin"), common.ErrValidation)

	stored, err := fu.GetByID(ctx, "u-admin")
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusActive, stored.Status)
	assert.Equal(t, models.UserRoleAdmin, stored.Role)
}

func TestSetStatusAndRole(t *testing.T) {
	svc, fu, _, _, rec := newUserService(t, models.User{ID: "u2", Username: "bob", Role: models.UserRoleUser, Status: models.UserStatusActive})
	ctx := context.Background()

	require.NoError(t, svc.SetStatus(ctx, adminSession, "u2", models.UserStatusInactive))
	require.NoError(t, svc.SetRole(ctx, adminSession, "u2", models.UserRoleAdmin))
	assert.ErrorIs(t, svc.SetStatus(ctx, adminSession, "u2", "banned"), common.ErrValidation)
	assert.ErrorIs(t, svc.SetRole(ctx, adminSession, "missing", models.UserRoleUser), common.ErrNotFound)

	stored, err := fu.GetByID(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusInactive, stored.Status)
	assert.Equal(t, models.UserRoleAdmin, stored.Role)
	assert.Equal(t, []string{"set_status", "set_role"}, rec.actions())
}

func TestAccountChangesRevokeSessions(t *testing.T) {
	svc, _, _, _, _ := newUserService(t,
		models.User{ID: "u2", Username: "bob", Role: models.UserRoleUser, Status: models.UserStatusActive},
		models.User{ID: "u3", Username: "carol", Role: models.UserRoleUser, Status: models.UserStatusInactive},
	)
	revoker := svc.sessions.(*fakeRevoker)
	ctx := context.Background()

	require.NoError(t, svc.SetStatus(ctx, adminSession, "u3", models.UserStatusActive))
	assert.Empty(t, revoker.users(), "activating a user leaves sessions alone")

	require.NoError(t, svc.SetStatus(ctx, adminSession, "u2", models.UserStatusInactive))
	require.NoError(t, svc.SetRole(ctx, adminSession, "u3", models.UserRoleAdmin))
	require.NoError(t, svc.Delete(ctx, adminSession, "u2"))
	assert.Equal(t, []string{"u2", "u3", "u2"}, revoker.users())

	assert.ErrorIs(t, svc.SetRole(ctx, adminSession, "missing", models.UserRoleUser), common.ErrNotFound)
	assert.Len(t, revoker.users(), 3)
}

func TestDeleteUserRemovesObjects(t *testing.T) {
	svc, fu, ff, fo, _ := newUserService(t, models.User{ID: "u2", Username: "bob"})
	ctx := context.Background()

	require.NoError(t, ff.Create(ctx, models.File{ID: "f1", ObjectKey: "files/a.csv", UploaderID: "u2"}))
	require.NoError(t, ff.Create(ctx, models.File{ID: "f2", ObjectKey: "files/b.csv", UploaderID: "u-other"}))
	require.NoError(t, fo.Put(ctx, "files/a.csv", strings.NewReader("a"), 1, "text/csv"))
	require.NoError(t, fo.Put(ctx, "files/b.csv", strings.NewReader("b"), 1, "text/csv"))

	require.NoError(t, svc.Delete(ctx, adminSession, "u2"))

	_, err := fu.GetByID(ctx, "u2")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	_, ok := fo.get("files/a.csv")
	assert.False(t, ok)
	_, ok = fo.get("files/b.csv")
	assert.True(t, ok)

	assert.ErrorIs(t, svc.Delete(ctx, adminSession, "u2"), common.ErrNotFound)
}
