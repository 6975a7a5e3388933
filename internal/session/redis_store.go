package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keySession = "session:%s"

type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore keeps sessions as JSON documents that expire ttl after the
// last save.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) Store {
	return &redisStore{rdb: rdb, ttl: ttl}
}

func (s *redisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(keySession, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: failed to load session %s: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("session: failed to decode session %s: %w", id, err)
	}

	return &sess, nil
}

func (s *redisStore) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to encode session %s: %w", sess.ID, err)
	}

	if err := s.rdb.Set(ctx, fmt.Sprintf(keySession, sess.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: failed to save session %s: %w", sess.ID, err)
	}

	return nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, fmt.Sprintf(keySession, id)).Err(); err != nil {
		return fmt.Errorf("session: failed to delete session %s: %w", id, err)
	}
	return nil
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}
