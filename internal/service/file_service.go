package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/audit"
	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/config"
	"github.com/qdmz/webchaxun/internal/ids"
	"github.com/qdmz/webchaxun/internal/media/sniffer"
	"github.com/qdmz/webchaxun/internal/models"
	"github.com/qdmz/webchaxun/internal/security"
)

const maxDisplayName = 100

type FileService struct {
	files   FileStore
	objects ObjectStore
	audit   audit.Recorder
	cfg     config.UploadConfig
	now     func() time.Time
	log     zerolog.Logger
}

func NewFileService(files FileStore, objects ObjectStore, recorder audit.Recorder, cfg config.UploadConfig, log zerolog.Logger) *FileService {
	return &FileService{
		files:   files,
		objects: objects,
		audit:   recorder,
		cfg:     cfg,
		now:     time.Now,
		log:     log,
	}
}

func (s *FileService) WithClock(now func() time.Time) *FileService {
	s.now = now
	return s
}

type UploadInput struct {
	Filename string
	Size     int64
	Body     io.Reader
}

func (s *FileService) Upload(ctx context.Context, actor *models.Session, input UploadInput) (models.File, error) {
	if input.Body == nil || input.Size <= 0 {
		return models.File{}, common.Invalid("file", "file is empty")
	}
	if input.Size > s.cfg.MaxSize {
		return models.File{}, common.Invalid("file", fmt.Sprintf("file exceeds %d MB", s.cfg.MaxSize>>20))
	}

	ext := extension(input.Filename)
	if !s.allowed(ext) {
		return models.File{}, common.Invalid("file", "only "+strings.Join(s.cfg.AllowedExtensions, ", ")+" files are accepted")
	}

	detected, head, err := sniffer.Detect(input.Body)
	if err != nil || string(detected.Type) != ext {
		s.log.Warn().
			Str("filename", input.Filename).
			Str("detected", string(detected.Type)).
			Msg("upload content does not match extension")
		return models.File{}, common.Invalid("file", "file content does not match its extension")
	}

	now := s.now()
	file := models.File{
		ID:           ids.New(),
		Filename:     security.SafeFilename(input.Filename, now),
		OriginalName: displayName(filepath.Base(strings.ReplaceAll(input.Filename, "\\", "/"))),
		FileType:     ext,
		FileSize:     input.Size,
		ObjectKey:    "files/" + ids.New() + "." + ext,
		UploaderID:   actor.UserID,
		UploadTime:   now,
		Status:       models.FileStatusActive,
	}

	body := io.MultiReader(bytes.NewReader(head), input.Body)
	if err := s.objects.Put(ctx, file.ObjectKey, body, input.Size, detected.MIME); err != nil {
		return models.File{}, err
	}
	if err := s.files.Create(ctx, file); err != nil {
		if rmErr := s.objects.Remove(ctx, file.ObjectKey); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("object_key", file.ObjectKey).Msg("remove object after failed insert")
		}
		return models.File{}, err
	}

	s.record(ctx, actor, "upload_file", file.OriginalName)
	return file, nil
}

func (s *FileService) List(ctx context.Context, page Page) ([]models.File, error) {
	page = page.normalize()
	return s.files.List(ctx, page.PerPage, page.offset())
}

// Rename changes the display name. The stored file type always supplies the
// extension; a trailing allowed extension in name is replaced, any other
// dotted suffix is part of the name.
func (s *FileService) Rename(ctx context.Context, actor *models.Session, id, name string) (models.File, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		return models.File{}, err
	}

	stem := displayName(name)
	if s.allowed(extension(stem)) {
		stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	}
	stem = strings.TrimRight(strings.TrimSpace(stem), ".")
	if stem == "" {
		return models.File{}, common.Invalid("name", "name is required")
	}
	renamed := stem + "." + file.FileType

	if err := s.files.Rename(ctx, id, renamed); err != nil {
		return models.File{}, err
	}
	s.record(ctx, actor, "rename_file", file.OriginalName+" -> "+renamed)
	file.OriginalName = renamed
	return file, nil
}

func (s *FileService) Delete(ctx context.Context, actor *models.Session, id string) error {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.objects.Remove(ctx, file.ObjectKey); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "delete_file", file.OriginalName)
	return nil
}

func (s *FileService) DownloadURL(ctx context.Context, id string) (string, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.objects.PresignedGet(ctx, file.ObjectKey, file.OriginalName)
}

func (s *FileService) allowed(ext string) bool {
	for _, a := range s.cfg.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

func (s *FileService) record(ctx context.Context, actor *models.Session, action, details string) {
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

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// displayName drops path separators and control characters and caps the
// length in runes.
func displayName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	runes := []rune(strings.TrimSpace(cleaned))
	if len(runes) > maxDisplayName {
		runes = runes[:maxDisplayName]
	}
	return string(runes)
}
