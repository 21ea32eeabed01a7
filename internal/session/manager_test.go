package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qdmz/webchaxun/internal/cache"
	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/models"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var browser = Fingerprint{IPAddress: "192.0.2.10", UserAgent: "Mozilla/5.0"}

func newManager(t *testing.T) (*Manager, *MemoryStore, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore().WithClock(c.Now)
	m := NewManager(store, time.Hour, 5*time.Minute, zerolog.Nop()).WithClock(c.Now)
	return m, store, c
}

func TestInitStartsNewSession(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	sess, err := m.Init(ctx, "", browser)
	require.NoError(t, err)
	assert.Len(t, sess.ID, 64)
	assert.True(t, sess.Initiated)
	assert.False(t, sess.Authenticated())
	assert.Equal(t, browser.UserAgent, sess.UserAgent)

	_, err = store.Load(ctx, sess.ID)
	require.NoError(t, err)
}

func TestInitIgnoresUnknownClientID(t *testing.T) {
	m, _, _ := newManager(t)

	sess, err := m.Init(context.Background(), "attacker-chosen", browser)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
}

func TestInitRefreshesLastActivity(t *testing.T) {
	m, _, c := newManager(t)
	ctx := context.Background()

	sess, err := m.Init(ctx, "", browser)
	require.NoError(t, err)

	c.Advance(59 * time.Minute)
	again, err := m.Init(ctx, sess.ID, browser)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, c.Now(), again.LastActivity)

	c.Advance(59 * time.Minute)
	_, err = m.Init(ctx, sess.ID, browser)
	require.NoError(t, err, "activity keeps the session alive")
}

func TestInitExpiresIdleSession(t *testing.T) {
	m, store, c := newManager(t)
	ctx := context.Background()

	sess, err := m.Init(ctx, "", browser)
	require.NoError(t, err)
	sess.UserID, sess.Username, sess.Role = "u1", "admin", models.UserRoleAdmin
	require.NoError(t, m.Save(ctx, sess))

	c.Advance(time.Hour + time.Second)
	fresh, err := m.Init(ctx, sess.ID, browser)
	require.ErrorIs(t, err, common.ErrSessionExpired)
	require.NotNil(t, fresh)
	assert.NotEqual(t, sess.ID, fresh.ID)
	assert.False(t, fresh.Authenticated())

	_, err = store.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInitDestroysOnUserAgentChange(t *testing.T) {
	m, store, c := newManager(t)
	ctx := context.Background()

	sess, err := m.Init(ctx, "", browser)
	require.NoError(t, err)
	sess.UserID = "u1"
	require.NoError(t, m.Save(ctx, sess))

	c.Advance(time.Second)
	hijacked := Fingerprint{IPAddress: browser.IPAddress, UserAgent: "curl/8.0"}
	got, err := m.Init(ctx, sess.ID, hijacked)
	require.ErrorIs(t, err, common.ErrFingerprintMismatch)
	require.ErrorIs(t, err, common.ErrSessionViolation)
	assert.Nil(t, got)

	_, err = store.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Init(ctx, sess.ID, browser)
	require.NoError(t, err, "the legitimate client gets a new anonymous session")
}

func TestInitDestroysOnIPChange(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	sess, err := m.Init(ctx, "", browser)
	require.NoError(t, err)

	_, err = m.Init(ctx, sess.ID, Fingerprint{IPAddress: "203.0.113.5", UserAgent: browser.UserAgent})
	require.ErrorIs(t, err, common.ErrFingerprintMismatch)
}

func TestInitRegeneratesUninitiatedSession(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.Session{ID: "planted"}, time.Hour))

	sess, err := m.Init(ctx, "planted", browser)
	require.NoError(t, err)
	assert.NotEqual(t, "planted", sess.ID)
	assert.True(t, sess.Initiated)
	assert.Equal(t, browser.IPAddress, sess.IPAddress)

	_, err = store.Load(ctx, "planted")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegenerateKeepsData(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	sess, err := m.Init(ctx, "", browser)
	require.NoError(t, err)
	old := sess.ID
	sess.UserID = "u1"

	require.NoError(t, m.Regenerate(ctx, sess))
	assert.NotEqual(t, old, sess.ID)

	_, err = store.Load(ctx, old)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestInitDropsRevokedLogin(t *testing.T) {
	m, store, c := newManager(t)
	mc := cache.NewMemoryCache(0).WithClock(c.Now)
	t.Cleanup(mc.Close)
	revocations := NewRevocations(mc, time.Hour+5*time.Minute).WithClock(c.Now)
	m.WithRevocations(revocations)
	ctx := context.Background()

	login := func() *models.Session {
		sess, err := m.Init(ctx, "", browser)
		require.NoError(t, err)
		sess.UserID = "u1"
		sess.Username = "bob"
		sess.Role = models.UserRoleAdmin
		sess.LoginTime = c.Now()
		require.NoError(t, m.Regenerate(ctx, sess))
		return sess
	}

	old := login()
	other, err := m.Init(ctx, "", browser)
	require.NoError(t, err)

	c.Advance(time.Minute)
	require.NoError(t, revocations.Revoke(ctx, "u1"))

	sess, err := m.Init(ctx, old.ID, browser)
	require.ErrorIs(t, err, common.ErrSessionExpired)
	assert.False(t, sess.Authenticated())
	assert.Empty(t, sess.Role)
	assert.NotEqual(t, old.ID, sess.ID)
	_, err = store.Load(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Init(ctx, other.ID, browser)
	assert.NoError(t, err, "anonymous sessions are untouched")

	c.Advance(time.Second)
	fresh := login()
	again, err := m.Init(ctx, fresh.ID, browser)
	require.NoError(t, err)
	assert.True(t, again.Authenticated(), "a login after the revocation stays valid")
}
