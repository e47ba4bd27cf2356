// Package session implements the server-side session store. Session IDs are
// opaque; all session state lives in Redis and cookies carry only the ID.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bimatrack/bimatrack-backend/pkg/errors"
)

const (
	sessionKeyPrefix  = "session:"
	userSessionPrefix = "user_sessions:"
)

// Session is the authenticated state attached to a cookie.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenant_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists sessions in Redis with a sliding TTL.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a session store
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Create opens a fresh session for the user. Existing sessions for the same
// user are revoked first so the session ID rotates on every login.
func (s *Store) Create(ctx context.Context, sess Session) (*Session, error) {
	if err := s.RevokeAllForUser(ctx, sess.UserID); err != nil {
		return nil, err
	}

	sess.ID = uuid.New().String()
	sess.CreatedAt = time.Now().UTC()

	body, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+sess.ID, body, s.ttl)
	pipe.SAdd(ctx, userSessionPrefix+sess.UserID, sess.ID)
	pipe.Expire(ctx, userSessionPrefix+sess.UserID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return &sess, nil
}

// Get loads a session by ID and refreshes its TTL.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	body, err := s.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, errors.Unauthorized("session expired or revoked")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	s.rdb.Expire(ctx, sessionKeyPrefix+id, s.ttl)
	return &sess, nil
}

// Revoke deletes a single session.
func (s *Store) Revoke(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		// Already gone; revocation is idempotent.
		return nil
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.SRem(ctx, userSessionPrefix+sess.UserID, id)
	_, err = pipe.Exec(ctx)
	return err
}

// RevokeAllForUser deletes every session belonging to a user.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.rdb.SMembers(ctx, userSessionPrefix+userID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, userSessionPrefix+userID)
	return s.rdb.Del(ctx, keys...).Err()
}
