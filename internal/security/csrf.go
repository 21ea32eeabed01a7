package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenStore holds the per-session CSRF token map. ConsumeToken must remove
// the token atomically so two concurrent callers cannot both see it.
type TokenStore interface {
	PutToken(ctx context.Context, sessionID, token string, expiresAt time.Time) error
	ConsumeToken(ctx context.Context, sessionID, token string) (expiresAt time.Time, found bool, err error)
	PurgeTokens(ctx context.Context, sessionID string, now time.Time) error
}

// CSRFStore issues single-use, time-boxed form tokens.
type CSRFStore struct {
	tokens TokenStore
	ttl    time.Duration
	now    func() time.Time
}

func NewCSRFStore(tokens TokenStore, ttl time.Duration) *CSRFStore {
	return &CSRFStore{tokens: tokens, ttl: ttl, now: time.Now}
}

func (s *CSRFStore) WithClock(now func() time.Time) *CSRFStore {
	s.now = now
	return s
}

// Generate returns a fresh 256-bit hex token bound to the session.
func (s *CSRFStore) Generate(ctx context.Context, sessionID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("csrf token: %w", err)
	}
	token := hex.EncodeToString(buf)

	now := s.now()
	if err := s.tokens.PutToken(ctx, sessionID, token, now.Add(s.ttl)); err != nil {
		return "", fmt.Errorf("store csrf token: %w", err)
	}
	if err := s.tokens.PurgeTokens(ctx, sessionID, now); err != nil {
		return "", fmt.Errorf("purge csrf tokens: %w", err)
	}
	return token, nil
}

// Validate consumes token. It returns true only when the token existed and
// had not expired; the token is gone afterwards either way.
func (s *CSRFStore) Validate(ctx context.Context, sessionID, token string) (bool, error) {
	if sessionID == "" || token == "" {
		return false, nil
	}
	expiresAt, found, err := s.tokens.ConsumeToken(ctx, sessionID, token)
	if err != nil {
		return false, fmt.Errorf("consume csrf token: %w", err)
	}
	if !found {
		return false, nil
	}
	return s.now().Before(expiresAt), nil
}
