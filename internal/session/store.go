// Package session keeps server-side session state keyed by an opaque id
// and enforces idle timeout and fingerprint binding.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/qdmz/webchaxun/internal/models"
	"github.com/qdmz/webchaxun/internal/security"
)

var ErrNotFound = errors.New("session not found")

// Store persists sessions and their CSRF token maps. Destroy drops the
// tokens together with the session.
type Store interface {
	security.TokenStore

	Load(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

// NewID returns 32 random bytes, hex encoded.
func NewID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
