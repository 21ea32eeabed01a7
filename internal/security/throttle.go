package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/cache"
	"github.com/qdmz/webchaxun/internal/common"
)

// LoginThrottle counts login attempts per username and locks the username
// out once the count reaches the limit. The count lives in the shared
// cache, so the limit holds across API processes.
type LoginThrottle struct {
	cache       cache.Cache
	maxAttempts int
	window      time.Duration
	log         zerolog.Logger
}

func NewLoginThrottle(c cache.Cache, maxAttempts int, window time.Duration, log zerolog.Logger) *LoginThrottle {
	return &LoginThrottle{
		cache:       c,
		maxAttempts: maxAttempts,
		window:      window,
		log:         log,
	}
}

func throttleKey(username string) string {
	return "login_attempts:" + strings.TrimSpace(username)
}

// Reserve claims one login attempt for username before its password is
// checked. The claim is a failure until Clear runs after a successful
// login. Once maxAttempts claims are outstanding it returns a
// *common.RateLimitError, and the lockout window is not extended.
func (t *LoginThrottle) Reserve(ctx context.Context, username string) (int64, error) {
	n, ok, err := t.cache.IncrBelow(ctx, throttleKey(username), int64(t.maxAttempts), t.window)
	if err != nil {
		return 0, fmt.Errorf("reserve login attempt: %w", err)
	}
	if ok {
		return n, nil
	}

	remaining, err := t.cache.TTL(ctx, throttleKey(username))
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		t.log.Warn().Err(err).Str("username", username).Msg("read lockout ttl failed")
	}
	if remaining <= 0 {
		remaining = t.window
	}

	t.log.Warn().
		Str("username", username).
		Int64("attempts", n).
		Dur("remaining", remaining).
		Msg("login locked out")
	return n, &common.RateLimitError{Remaining: remaining}
}

func (t *LoginThrottle) Clear(ctx context.Context, username string) error {
	if err := t.cache.Delete(ctx, throttleKey(username)); err != nil {
		return fmt.Errorf("clear login attempts: %w", err)
	}
	return nil
}
