package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/models"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var userCols = []string{"id", "username", "email", "password_hash", "role", "status", "created_at", "updated_at"}

func TestFindActiveByUsername(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM users WHERE username = \$1 AND status = 'active'`).
		WithArgs("admin").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(
			"u1", "admin", "admin@example.com", []byte("$2y$12$hash"),
			models.UserRoleAdmin, models.UserStatusActive, now, now,
		))

	user, err := repo.FindActiveByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, models.UserRoleAdmin, user.Role)
	assert.Equal(t, []byte("$2y$12$hash"), user.PasswordHash)

	mock.ExpectQuery(`FROM users WHERE username = \$1 AND status = 'active'`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.FindActiveByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("u2", "admin", "admin@example.com", []byte("h"), models.UserRoleUser, models.UserStatusActive).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	err := repo.Create(context.Background(), models.User{
		ID:           "u2",
		Username:     "admin",
		Email:        "admin@example.com",
		PasswordHash: []byte("h"),
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
	})
	require.ErrorIs(t, err, common.ErrConflict)
	assert.Contains(t, err.Error(), "users_username_key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMissingUser(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec(`UPDATE users SET status`).
		WithArgs("nope", models.UserStatusInactive).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateStatus(context.Background(), "nope", models.UserStatusInactive)
	assert.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePasswordPropagatesDriverError(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	boom := errors.New("connection reset")

	mock.ExpectExec(`UPDATE users SET password_hash`).
		WithArgs("u1", []byte("new")).
		WillReturnError(boom)

	err := repo.UpdatePassword(context.Background(), "u1", []byte("new"))
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Now()

	mock.ExpectQuery(`FROM users ORDER BY created_at DESC LIMIT`).
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow("u1", "admin", "a@example.com", []byte("h"), models.UserRoleAdmin, models.UserStatusActive, now, now).
			AddRow("u2", "bob", "b@example.com", []byte("h"), models.UserRoleUser, models.UserStatusInactive, now, now))

	users, err := repo.List(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[1].Username)
	assert.Equal(t, models.UserStatusInactive, users[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
