package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/models"
)

// Fingerprint is the client identity a session is bound to.
type Fingerprint struct {
	IPAddress string
	UserAgent string
}

// Manager runs the per-request session lifecycle on top of a Store.
type Manager struct {
	store       Store
	revocations *Revocations
	timeout     time.Duration
	grace       time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

func NewManager(store Store, timeout, grace time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		timeout: timeout,
		grace:   grace,
		now:     time.Now,
		log:     log,
	}
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithRevocations makes Init drop the identity of sessions whose user was
// revoked after they logged in.
func (m *Manager) WithRevocations(r *Revocations) *Manager {
	m.revocations = r
	return m
}

func (m *Manager) Store() Store {
	return m.store
}

func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

func (m *Manager) ttl() time.Duration {
	return m.timeout + m.grace
}

// Init validates and refreshes the session named by id for one request.
//
// An unknown or empty id yields a new anonymous session. An idle session
// is destroyed and replaced by a new anonymous one, returned together with
// common.ErrSessionExpired. A fingerprint mismatch destroys the session and
// returns nil with common.ErrFingerprintMismatch. A revoked login is moved
// to a new anonymous id and also reported as common.ErrSessionExpired.
func (m *Manager) Init(ctx context.Context, id string, fp Fingerprint) (*models.Session, error) {
	now := m.now()

	var sess *models.Session
	if id != "" {
		loaded, err := m.store.Load(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, err
		default:
			sess = loaded
		}
	}

	if sess == nil {
		return m.start(ctx, fp, now)
	}

	if !sess.LastActivity.IsZero() && now.Sub(sess.LastActivity) > m.timeout {
		m.log.Info().
			Str("user_id", sess.UserID).
			Str("ip", fp.IPAddress).
			Dur("idle", now.Sub(sess.LastActivity)).
			Msg("session expired")
		if err := m.store.Destroy(ctx, sess.ID); err != nil {
			return nil, err
		}
		fresh, err := m.start(ctx, fp, now)
		if err != nil {
			return nil, err
		}
		return fresh, common.ErrSessionExpired
	}

	if !sess.Initiated {
		if err := m.rotate(ctx, sess); err != nil {
			return nil, err
		}
		sess.IPAddress = fp.IPAddress
		sess.UserAgent = fp.UserAgent
		sess.Initiated = true
	} else if sess.IPAddress != fp.IPAddress || sess.UserAgent != fp.UserAgent {
		m.log.Warn().
			Str("user_id", sess.UserID).
			Str("username", sess.Username).
			Str("stored_ip", sess.IPAddress).
			Str("ip", fp.IPAddress).
			Bool("user_agent_changed", sess.UserAgent != fp.UserAgent).
			Msg("session fingerprint mismatch")
		if err := m.store.Destroy(ctx, sess.ID); err != nil {
			return nil, err
		}
		return nil, common.ErrFingerprintMismatch
	}

	var expired error
	if m.revocations != nil {
		revoked, err := m.revocations.Revoked(ctx, sess)
		if err != nil {
			return nil, err
		}
		if revoked {
			m.log.Info().
				Str("user_id", sess.UserID).
				Str("username", sess.Username).
				Str("ip", fp.IPAddress).
				Msg("session revoked")
			sess.ClearIdentity()
			if err := m.rotate(ctx, sess); err != nil {
				return nil, err
			}
			expired = common.ErrSessionExpired
		}
	}

	sess.LastActivity = now
	if err := m.store.Save(ctx, sess, m.ttl()); err != nil {
		return nil, err
	}
	return sess, expired
}

func (m *Manager) start(ctx context.Context, fp Fingerprint, now time.Time) (*models.Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	sess := &models.Session{
		ID:           id,
		LastActivity: now,
		IPAddress:    fp.IPAddress,
		UserAgent:    fp.UserAgent,
		Initiated:    true,
	}
	if err := m.store.Save(ctx, sess, m.ttl()); err != nil {
		return nil, err
	}
	return sess, nil
}

// rotate gives sess a new id and drops the old record. CSRF tokens issued
// under the old id do not survive.
func (m *Manager) rotate(ctx context.Context, sess *models.Session) error {
	oldID := sess.ID
	newID, err := NewID()
	if err != nil {
		return err
	}
	if err := m.store.Destroy(ctx, oldID); err != nil {
		return fmt.Errorf("drop old session: %w", err)
	}
	sess.ID = newID
	return nil
}

// Regenerate moves sess to a new id and persists it. Used on privilege
// change such as login.
func (m *Manager) Regenerate(ctx context.Context, sess *models.Session) error {
	if err := m.rotate(ctx, sess); err != nil {
		return err
	}
	sess.LastActivity = m.now()
	return m.store.Save(ctx, sess, m.ttl())
}

func (m *Manager) Save(ctx context.Context, sess *models.Session) error {
	return m.store.Save(ctx, sess, m.ttl())
}

func (m *Manager) Destroy(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.ID == "" {
		return nil
	}
	return m.store.Destroy(ctx, sess.ID)
}
