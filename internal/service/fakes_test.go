package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/qdmz/webchaxun/internal/cache"
	"github.com/qdmz/webchaxun/internal/common"
	"github.com/qdmz/webchaxun/internal/config"
	"github.com/qdmz/webchaxun/internal/models"
	"github.com/qdmz/webchaxun/internal/repository"
	"github.com/qdmz/webchaxun/internal/security"
	"github.com/qdmz/webchaxun/internal/session"
)

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]models.User
	updates int
	lookups int
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{byID: make(map[string]models.User)}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, user models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == user.Username || u.Email == user.Email {
			return common.ErrConflict
		}
	}
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindActiveByUsername(_ context.Context, username string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	for _, u := range f.byID {
		if u.Username == username && u.Status == models.UserStatusActive {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUsers) List(_ context.Context, limit, offset int) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]models.User, 0, len(f.byID))
	for _, u := range f.byID {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeUsers) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID), nil
}

func (f *fakeUsers) update(id string, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(&u)
	f.byID[id] = u
	f.updates++
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id string, hash []byte) error {
	return f.update(id, func(u *models.User) { u.PasswordHash = hash })
}

func (f *fakeUsers) UpdateStatus(_ context.Context, id string, status models.UserStatus) error {
	return f.update(id, func(u *models.User) { u.Status = status })
}

func (f *fakeUsers) UpdateRole(_ context.Context, id string, role models.UserRole) error {
	return f.update(id, func(u *models.User) { u.Role = role })
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeFiles struct {
	mu   sync.Mutex
	byID map[string]models.File
	fail error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{byID: make(map[string]models.File)}
}

func (f *fakeFiles) Create(_ context.Context, file models.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.byID[file.ID] = file
	return nil
}

func (f *fakeFiles) GetByID(_ context.Context, id string) (models.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.byID[id]
	if !ok {
		return models.File{}, repository.ErrFileNotFound
	}
	return file, nil
}

func (f *fakeFiles) List(_ context.Context, limit, offset int) ([]models.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.File, 0, len(f.byID))
	for _, file := range f.byID {
		out = append(out, file)
	}
	return out, nil
}

func (f *fakeFiles) Rename(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.byID[id]
	if !ok {
		return repository.ErrFileNotFound
	}
	file.OriginalName = name
	f.byID[id] = file
	return nil
}

func (f *fakeFiles) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeFiles) ObjectKeysByUploader(_ context.Context, uploaderID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, file := range f.byID {
		if file.UploaderID == uploaderID {
			keys = append(keys, file.ObjectKey)
		}
	}
	return keys, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeObjects) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) PresignedGet(_ context.Context, key, name string) (string, error) {
	return "https://objects.test/" + key + "?name=" + name, nil
}

func (f *fakeObjects) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return bytes.Clone(data), ok
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked []string
}

func (f *fakeRevoker) Revoke(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, userID)
	return nil
}

func (f *fakeRevoker) users() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (r *recordingAudit) Record(_ context.Context, event models.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testHasher(cost int) *security.PasswordHasher {
	return security.NewPasswordHasher(config.SecurityConfig{
		PasswordAlgorithm: config.PasswordBcrypt,
		BcryptCost:        cost,
	})
}

func mustHash(t *testing.T, password string, cost int) []byte {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		t.Fatal(err)
	}
	return hash
}

type authFixture struct {
	svc      *AuthService
	users    *fakeUsers
	manager  *session.Manager
	store    *session.MemoryStore
	audit    *recordingAudit
	clock    *testClock
	throttle *security.LoginThrottle
}

func newAuthFixture(t *testing.T, users ...models.User) *authFixture {
	t.Helper()
	clk := newTestClock()
	mem := cache.NewMemoryCache(0).WithClock(clk.Now)
	t.Cleanup(mem.Close)

	store := session.NewMemoryStore().WithClock(clk.Now)
	manager := session.NewManager(store, time.Hour, 5*time.Minute, zerolog.Nop()).WithClock(clk.Now)
	throttle := security.NewLoginThrottle(mem, 5, 15*time.Minute, zerolog.Nop())
	rec := &recordingAudit{}
	fu := newFakeUsers(users...)

	svc := NewAuthService(fu, testHasher(bcrypt.MinCost), throttle, manager, rec, zerolog.Nop()).WithClock(clk.Now)
	return &authFixture{
		svc:      svc,
		users:    fu,
		manager:  manager,
		store:    store,
		audit:    rec,
		clock:    clk,
		throttle: throttle,
	}
}

func (f *authFixture) newSession(t *testing.T) *models.Session {
	t.Helper()
	sess, err := f.manager.Init(context.Background(), "", session.Fingerprint{IPAddress: "192.0.2.1", UserAgent: "test"})
	if err != nil {
		t.Fatal(err)
	}
	return sess
}
