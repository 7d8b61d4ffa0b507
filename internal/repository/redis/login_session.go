// Package redis stores short-lived state in Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
	goredis "github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "login_session:"
	// pendingIndexKey is a sorted set of session IDs scored by expiry, used
	// to list sessions without scanning the keyspace.
	pendingIndexKey = "login_sessions:pending"
)

// LoginSessionStore implements auth.SessionStore. Each session is one key
// whose TTL is the session's lifetime, plus a counter key for code attempts
// so that concurrent verifications count through INCR.
type LoginSessionStore struct {
	rdb goredis.Cmdable
	now func() time.Time
}

func NewLoginSessionStore(rdb goredis.Cmdable) *LoginSessionStore {
	return &LoginSessionStore{rdb: rdb, now: time.Now}
}

func SessionKey(id string) string {
	return sessionKeyPrefix + id
}

func AttemptsKey(id string) string {
	return sessionKeyPrefix + id + ":attempts"
}

func (s *LoginSessionStore) Save(ctx context.Context, session auth.LoginSession) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return auth.ErrSessionNotFound
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal login session: %w", err)
	}

	if err := s.rdb.Set(ctx, SessionKey(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save login session: %w", err)
	}
	if err := s.rdb.Del(ctx, AttemptsKey(session.ID)).Err(); err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, pendingIndexKey, goredis.Z{
		Score:  float64(session.ExpiresAt.Unix()),
		Member: session.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to index login session: %w", err)
	}
	return nil
}

func (s *LoginSessionStore) Get(ctx context.Context, id string) (auth.LoginSession, error) {
	values, err := s.rdb.MGet(ctx, SessionKey(id), AttemptsKey(id)).Result()
	if err != nil {
		return auth.LoginSession{}, fmt.Errorf("failed to get login session: %w", err)
	}
	raw, ok := values[0].(string)
	if !ok {
		return auth.LoginSession{}, auth.ErrSessionNotFound
	}

	var session auth.LoginSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return auth.LoginSession{}, fmt.Errorf("failed to decode login session: %w", err)
	}
	if counted, ok := values[1].(string); ok {
		if session.Attempts, err = strconv.Atoi(counted); err != nil {
			return auth.LoginSession{}, fmt.Errorf("failed to decode login attempts: %w", err)
		}
	}
	return session, nil
}

func (s *LoginSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, SessionKey(id), AttemptsKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete login session: %w", err)
	}
	if err := s.rdb.ZRem(ctx, pendingIndexKey, id).Err(); err != nil {
		return fmt.Errorf("failed to unindex login session: %w", err)
	}
	return nil
}

// IncrementAttempts bumps the counter in the same transaction that checks
// the session still exists. The counter expires with the session.
func (s *LoginSessionStore) IncrementAttempts(ctx context.Context, session auth.LoginSession) (int, error) {
	var exists *goredis.IntCmd
	var attempts *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		exists = pipe.Exists(ctx, SessionKey(session.ID))
		attempts = pipe.Incr(ctx, AttemptsKey(session.ID))
		pipe.ExpireAt(ctx, AttemptsKey(session.ID), session.ExpiresAt)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempt: %w", err)
	}
	if exists.Val() == 0 {
		return 0, auth.ErrSessionNotFound
	}
	return int(attempts.Val()), nil
}

// Consume relies on DEL reporting how many keys it removed: only one caller
// can see the session key go away.
func (s *LoginSessionStore) Consume(ctx context.Context, id string) error {
	var removed *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		removed = pipe.Del(ctx, SessionKey(id))
		pipe.Del(ctx, AttemptsKey(id))
		pipe.ZRem(ctx, pendingIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to consume login session: %w", err)
	}
	if removed.Val() != 1 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// ListPending returns live sessions, soonest expiry first. Index entries
// whose key already expired are dropped along the way.
func (s *LoginSessionStore) ListPending(ctx context.Context) ([]auth.LoginSession, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, pendingIndexKey, &goredis.ZRangeBy{
		Min: "(" + strconv.FormatInt(s.now().Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list login sessions: %w", err)
	}
	if len(ids) == 0 {
		return []auth.LoginSession{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = SessionKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load login sessions: %w", err)
	}

	sessions := make([]auth.LoginSession, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var session auth.LoginSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, fmt.Errorf("failed to decode login session %s: %w", ids[i], err)
		}
		sessions = append(sessions, session)
	}

	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, pendingIndexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune login session index: %w", err)
		}
	}
	return sessions, nil
}

// DeleteExpired prunes the index; the session keys expire on their own.
func (s *LoginSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed, err := s.rdb.ZRemRangeByScore(ctx, pendingIndexKey, "-inf", strconv.FormatInt(now.Unix(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired login sessions: %w", err)
	}
	return int(removed), nil
}
