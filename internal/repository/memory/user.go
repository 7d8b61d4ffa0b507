package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/google/uuid"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[string]user.User
}

func NewUserStore(users ...user.User) *UserStore {
	s := &UserStore{users: make(map[string]user.User)}
	for _, u := range users {
		s.Add(u)
	}
	return s
}

// Add inserts or replaces a user.
func (s *UserStore) Add(u user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *UserStore) Create(ctx context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return user.User{}, user.ErrEmailAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now()
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, user.ErrUserNotFound
}

func (s *UserStore) GetByID(ctx context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrUserNotFound
	}
	return u, nil
}

func (s *UserStore) ListByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []user.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
