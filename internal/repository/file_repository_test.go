package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qdmz/webchaxun/internal/models"
)

func TestFileRepositoryGetAndRename(t *testing.T) {
	mock := newMock(t)
	repo := NewFileRepository(mock)
	ctx := context.Background()
	now := time.Now()

	cols := []string{"id", "filename", "original_name", "file_type", "file_size", "object_key", "uploader_id", "upload_time", "status"}
	mock.ExpectQuery(`FROM files WHERE id = \$1`).
		WithArgs("f1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"f1", "report_1_abcd.xlsx", "report.xlsx", "xlsx", int64(2048), "files/f1.xlsx", "u1", now, models.FileStatusActive,
		))

	file, err := repo.GetByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), file.FileSize)
	assert.Equal(t, "files/f1.xlsx", file.ObjectKey)

	mock.ExpectExec(`UPDATE files SET original_name`).
		WithArgs("f1", "q1.xlsx").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.Rename(ctx, "f1", "q1.xlsx"))

	mock.ExpectQuery(`FROM files WHERE id = \$1`).
		WithArgs("f2").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(ctx, "f2")
	assert.ErrorIs(t, err, ErrFileNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObjectKeysByUploader(t *testing.T) {
	mock := newMock(t)
	repo := NewFileRepository(mock)

	mock.ExpectQuery(`SELECT object_key FROM files WHERE uploader_id`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"object_key"}).AddRow("a").AddRow("b"))

	keys, err := repo.ObjectKeysByUploader(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActionRepositoryInsert(t *testing.T) {
	mock := newMock(t)
	repo := NewActionRepository(mock)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(models.AuditUserAction, "INFO", "u1", "admin", "login", "", "192.0.2.1", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Insert(context.Background(), models.AuditEvent{
		Kind:       models.AuditUserAction,
		Level:      "INFO",
		UserID:     "u1",
		Username:   "admin",
		Action:     "login",
		IPAddress:  "192.0.2.1",
		OccurredAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
