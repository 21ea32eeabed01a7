package session

import (
	"context"
	"sync"
	"time"

	"github.com/qdmz/webchaxun/internal/models"
)

type memoryRecord struct {
	sess    models.Session
	expires time.Time
	tokens  map[string]time.Time
}

// MemoryStore keeps sessions in process memory. Suitable for a single API
// instance and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) live(id string) (*memoryRecord, bool) {
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	if !s.now().Before(rec.expires) {
		delete(s.records, id)
		return nil, false
	}
	return rec, true
}

func (s *MemoryStore) Load(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	sess := rec.sess
	sess.ID = id
	return &sess, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *models.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.live(sess.ID)
	if !ok {
		rec = &memoryRecord{tokens: make(map[string]time.Time)}
		s.records[sess.ID] = rec
	}
	rec.sess = *sess
	rec.expires = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) PutToken(_ context.Context, id, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.live(id)
	if !ok {
		return ErrNotFound
	}
	rec.tokens[token] = expiresAt
	return nil
}

func (s *MemoryStore) ConsumeToken(_ context.Context, id, token string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.live(id)
	if !ok {
		return time.Time{}, false, nil
	}
	exp, found := rec.tokens[token]
	delete(rec.tokens, token)
	return exp, found, nil
}

func (s *MemoryStore) PurgeTokens(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.live(id)
	if !ok {
		return nil
	}
	for token, exp := range rec.tokens {
		if exp.Before(now) {
			delete(rec.tokens, token)
		}
	}
	return nil
}

// DeleteExpired drops every expired session and reports how many went.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		if !now.Before(rec.expires) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}
