package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/qdmz/webchaxun/internal/database"
	"github.com/qdmz/webchaxun/internal/models"
)

// PostgresStore keeps sessions in the sessions table and CSRF tokens in
// csrf_tokens, which cascades on session delete.
type PostgresStore struct {
	db  database.DBTX
	now func() time.Time
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	s.now = now
	return s
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*models.Session, error) {
	const query = `
		SELECT data FROM sessions WHERE id = $1 AND expires_at > $2
	`

	var raw []byte
	if err := s.db.QueryRow(ctx, query, id, s.now()).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.ID = id
	return &sess, nil
}

func (s *PostgresStore) Save(ctx context.Context, sess *models.Session, ttl time.Duration) error {
	const query = `
		INSERT INTO sessions (id, user_id, data, expires_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, NOW())
		ON CONFLICT (id)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			data = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, sess.ID, sess.UserID, raw, s.now().Add(ttl)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Destroy(ctx context.Context, id string) error {
	const query = `DELETE FROM sessions WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	const query = `
		INSERT INTO csrf_tokens (session_id, token, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.Exec(ctx, query, id, token, expiresAt); err != nil {
		return fmt.Errorf("put csrf token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsumeToken(ctx context.Context, id, token string) (time.Time, bool, error) {
	const query = `
		DELETE FROM csrf_tokens
		WHERE session_id = $1 AND token = $2
		RETURNING expires_at
	`

	var expiresAt time.Time
	if err := s.db.QueryRow(ctx, query, id, token).Scan(&expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("consume csrf token: %w", err)
	}
	return expiresAt, true, nil
}

func (s *PostgresStore) PurgeTokens(ctx context.Context, id string, now time.Time) error {
	const query = `DELETE FROM csrf_tokens WHERE session_id = $1 AND expires_at < $2`
	if _, err := s.db.Exec(ctx, query, id, now); err != nil {
		return fmt.Errorf("purge csrf tokens: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry; tokens go with them.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at <= $1`
	tag, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
