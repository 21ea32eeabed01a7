package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qdmz/webchaxun/internal/models"
)

// RedisStore keeps each session as a JSON string and its CSRF tokens in a
// sibling hash (token -> expiry in unix nanoseconds).
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a store whose token hashes live for ttl after the
// last write, matching the session TTL.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *RedisStore) tokenKey(id string) string {
	return s.prefix + "session:" + id + ":csrf"
}

func (s *RedisStore) Load(ctx context.Context, id string) (*models.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.ID = id
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *models.Session, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sess.ID), raw, ttl)
		pipe.Expire(ctx, s.tokenKey(sess.ID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.sessionKey(id), s.tokenKey(id)).Err(); err != nil {
		return fmt.Errorf("redis destroy session: %w", err)
	}
	return nil
}

func (s *RedisStore) PutToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.tokenKey(id), token, strconv.FormatInt(expiresAt.UnixNano(), 10))
		pipe.Expire(ctx, s.tokenKey(id), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put csrf token: %w", err)
	}
	return nil
}

// ConsumeToken reads and deletes the field inside one MULTI block. Only the
// caller whose HDEL removed the field gets found=true.
func (s *RedisStore) ConsumeToken(ctx context.Context, id, token string) (time.Time, bool, error) {
	var (
		get *redis.StringCmd
		del *redis.IntCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, s.tokenKey(id), token)
		del = pipe.HDel(ctx, s.tokenKey(id), token)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return time.Time{}, false, fmt.Errorf("redis consume csrf token: %w", err)
	}
	if del.Val() != 1 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(get.Val(), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse csrf expiry: %w", err)
	}
	return time.Unix(0, nanos), true, nil
}

func (s *RedisStore) PurgeTokens(ctx context.Context, id string, now time.Time) error {
	all, err := s.client.HGetAll(ctx, s.tokenKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis list csrf tokens: %w", err)
	}

	var expired []string
	for token, raw := range all {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || time.Unix(0, nanos).Before(now) {
			expired = append(expired, token)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.tokenKey(id), expired...).Err(); err != nil {
		return fmt.Errorf("redis purge csrf tokens: %w", err)
	}
	return nil
}
