package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/qdmz/webchaxun/internal/cache"
	"github.com/qdmz/webchaxun/internal/models"
)

// Revocations records, per user, the moment their existing logins stopped
// being valid. Sessions that logged in at or before the mark lose their
// identity on their next request. Marks outlive every session that could
// still be in use, so they expire after the session timeout plus grace.
type Revocations struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewRevocations(c cache.Cache, ttl time.Duration) *Revocations {
	return &Revocations{cache: c, ttl: ttl, now: time.Now}
}

func (r *Revocations) WithClock(now func() time.Time) *Revocations {
	r.now = now
	return r
}

func revocationKey(userID string) string {
	return "session_revoked:" + userID
}

// Revoke ends every session userID currently holds.
func (r *Revocations) Revoke(ctx context.Context, userID string) error {
	mark := strconv.FormatInt(r.now().UnixNano(), 10)
	if err := r.cache.Set(ctx, revocationKey(userID), mark, r.ttl); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// Revoked reports whether sess logged in no later than its user's mark.
func (r *Revocations) Revoked(ctx context.Context, sess *models.Session) (bool, error) {
	if !sess.Authenticated() {
		return false, nil
	}
	raw, err := r.cache.Get(ctx, revocationKey(sess.UserID))
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read session revocation: %w", err)
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse session revocation %q: %w", raw, err)
	}
	return !sess.LoginTime.After(time.Unix(0, nanos)), nil
}
