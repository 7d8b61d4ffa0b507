package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/notification"
	"github.com/google/uuid"
)

type prefKey struct {
	userID string
	t      notification.Type
}

// NotificationStore keeps inboxes in insertion order per recipient.
type NotificationStore struct {
	mu          sync.RWMutex
	inboxes     map[string][]*notification.Notification
	preferences map[prefKey]notification.Preference
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		inboxes:     make(map[string][]*notification.Notification),
		preferences: make(map[prefKey]notification.Preference),
	}
}

func (s *NotificationStore) Save(ctx context.Context, notifications ...*notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now()
		}
		stored := *n
		s.inboxes[n.RecipientID] = append(s.inboxes[n.RecipientID], &stored)
	}
	return nil
}

// List returns newest first; ties keep the later insert first.
func (s *NotificationStore) List(ctx context.Context, filter notification.Filter) ([]notification.Notification, int, error) {
	filter.Normalize()

	s.mu.RLock()
	inbox := s.inboxes[filter.RecipientID]
	matched := make([]notification.Notification, 0, len(inbox))
	for i := len(inbox) - 1; i >= 0; i-- {
		if filter.Matches(*inbox[i]) {
			matched = append(matched, *inbox[i])
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b notification.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(matched)
	from := min(filter.Offset(), total)
	to := min(from+filter.PageSize, total)
	return matched[from:to], total, nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.inboxes[recipientID] {
		if !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, n := range s.inboxes[recipientID] {
		if n.IsRead() || (len(ids) > 0 && !slices.Contains(ids, n.ID)) {
			continue
		}
		stamp := at
		n.ReadAt = &stamp
		updated++
	}
	return updated, nil
}

func (s *NotificationStore) Delete(ctx context.Context, recipientID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inbox := s.inboxes[recipientID]
	i := slices.IndexFunc(inbox, func(n *notification.Notification) bool { return n.ID == id })
	if i < 0 {
		return notification.ErrNotificationNotFound
	}
	s.inboxes[recipientID] = slices.Delete(inbox, i, i+1)
	return nil
}

func (s *NotificationStore) Preferences(ctx context.Context, userID string) ([]notification.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []notification.Preference
	for _, t := range notification.Types() {
		if p, ok := s.preferences[prefKey{userID, t}]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *NotificationStore) SavePreference(ctx context.Context, pref notification.Preference) error {
	if pref.UpdatedAt.IsZero() {
		pref.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.preferences[prefKey{pref.UserID, pref.Type}] = pref
	s.mu.Unlock()
	return nil
}

func (s *NotificationStore) PushEnabled(ctx context.Context, userID string, t notification.Type) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[prefKey{userID, t}]
	if !ok {
		return true, nil
	}
	return p.PushEnabled, nil
}
