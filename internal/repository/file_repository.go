package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/qdmz/webchaxun/internal/database"
	"github.com/qdmz/webchaxun/internal/models"
)

type FileRepository struct {
	db database.DBTX
}

func NewFileRepository(db database.DBTX) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, filename, original_name, file_type, file_size, object_key, uploader_id, upload_time, status`

func scanFile(row pgx.Row) (models.File, error) {
	var file models.File
	err := row.Scan(
		&file.ID,
		&file.Filename,
		&file.OriginalName,
		&file.FileType,
		&file.FileSize,
		&file.ObjectKey,
		&file.UploaderID,
		&file.UploadTime,
		&file.Status,
	)
	return file, err
}

func (r *FileRepository) Create(ctx context.Context, file models.File) error {
	const query = `
		INSERT INTO files (
			id, filename, original_name, file_type, file_size, object_key, uploader_id, upload_time, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.db.Exec(ctx, query,
		file.ID,
		file.Filename,
		file.OriginalName,
		file.FileType,
		file.FileSize,
		file.ObjectKey,
		file.UploaderID,
		file.UploadTime,
		file.Status,
	)
	if err != nil {
		return fmt.Errorf("create file: %w", mapError(err, ErrFileNotFound))
	}
	return nil
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 AND status = 'active'`

	file, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return models.File{}, mapError(err, ErrFileNotFound)
	}
	return file, nil
}

func (r *FileRepository) List(ctx context.Context, limit, offset int) ([]models.File, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE status = 'active'
		ORDER BY upload_time DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]models.File, 0, limit)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (r *FileRepository) Rename(ctx context.Context, id, originalName string) error {
	const query = `
		UPDATE files SET original_name = $2 WHERE id = $1 AND status = 'active'
	`
	cmd, err := r.db.Exec(ctx, query, id, originalName)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM files WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// ObjectKeysByUploader lists storage keys owned by a user, used before the
// user row (and with it the file rows) is deleted.
func (r *FileRepository) ObjectKeysByUploader(ctx context.Context, uploaderID string) ([]string, error) {
	const query = `SELECT object_key FROM files WHERE uploader_id = $1`

	rows, err := r.db.Query(ctx, query, uploaderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
