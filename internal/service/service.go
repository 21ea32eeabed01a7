package service

import (
	"context"
	"io"

	"github.com/qdmz/webchaxun/internal/models"
)

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindActiveByUsername(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	Count(ctx context.Context) (int, error)
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	Delete(ctx context.Context, id string) error
}

type FileStore interface {
	Create(ctx context.Context, file models.File) error
	GetByID(ctx context.Context, id string) (models.File, error)
	List(ctx context.Context, limit, offset int) ([]models.File, error)
	Rename(ctx context.Context, id, originalName string) error
	Delete(ctx context.Context, id string) error
	ObjectKeysByUploader(ctx context.Context, uploaderID string) ([]string, error)
}

type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	PresignedGet(ctx context.Context, key, downloadName string) (string, error)
}

// Page bounds list queries.
type Page struct {
	Number  int
	PerPage int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 || p.PerPage > 100 {
		p.PerPage = 20
	}
	return p
}

func (p Page) offset() int {
	return (p.Number - 1) * p.PerPage
}

// SessionRevoker ends the live sessions of a user.
type SessionRevoker interface {
	Revoke(ctx context.Context, userID string) error
}
