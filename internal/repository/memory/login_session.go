package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
)

// LoginSessionStore implements auth.SessionStore for tests and single-node
// development. Expired sessions are invisible before they are pruned.
type LoginSessionStore struct {
	mu       sync.Mutex
	sessions map[string]auth.LoginSession
	now      func() time.Time
}

func NewLoginSessionStore() *LoginSessionStore {
	return &LoginSessionStore{sessions: make(map[string]auth.LoginSession), now: time.Now}
}

// WithClock replaces the store's time source.
func (s *LoginSessionStore) WithClock(now func() time.Time) *LoginSessionStore {
	s.now = now
	return s
}

func (s *LoginSessionStore) Save(ctx context.Context, session auth.LoginSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.IsExpired(s.now()) {
		return auth.ErrSessionNotFound
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *LoginSessionStore) Get(ctx context.Context, id string) (auth.LoginSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.IsExpired(s.now()) {
		return auth.LoginSession{}, auth.ErrSessionNotFound
	}
	return session, nil
}

func (s *LoginSessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *LoginSessionStore) IncrementAttempts(ctx context.Context, session auth.LoginSession) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok || stored.IsExpired(s.now()) {
		return 0, auth.ErrSessionNotFound
	}
	stored.Attempts++
	s.sessions[session.ID] = stored
	return stored.Attempts, nil
}

func (s *LoginSessionStore) Consume(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.IsExpired(s.now()) {
		return auth.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *LoginSessionStore) ListPending(ctx context.Context) ([]auth.LoginSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]auth.LoginSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		if !session.IsExpired(now) {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *LoginSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if session.IsExpired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
