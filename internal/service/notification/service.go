package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/notification"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/sse"
)

const (
	eventNotification = "notification"
	persistTimeout    = 30 * time.Second
)

type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	WorkerCount   int
	QueueSize     int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	return c
}

// inboxService persists drafts from a bounded queue in batches and pushes
// each stored entry to the recipient's live streams.
type inboxService struct {
	repo   notification.Repository
	hub    *sse.Hub
	config Config
	now    func() time.Time

	queue    chan notification.Draft
	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup

	// mu orders Enqueue's hand-off against Stop: once Stop holds it, no
	// draft can land in the queue after the writers drained it.
	mu     sync.RWMutex
	closed bool
}

func NewNotificationService(repo notification.Repository, hub *sse.Hub, cfg Config) notification.Service {
	cfg = cfg.withDefaults()
	s := &inboxService{
		repo:    repo,
		hub:     hub,
		config:  cfg,
		now:     time.Now,
		queue:   make(chan notification.Draft, cfg.QueueSize),
		stopped: make(chan struct{}),
	}

	s.wg.Add(cfg.WorkerCount)
	for i := range cfg.WorkerCount {
		go s.run(slog.With("component", "notification_writer", "worker", i))
	}

	slog.Info("Notification service started",
		"workers", cfg.WorkerCount, "batch_size", cfg.BatchSize, "flush_interval", cfg.FlushInterval)
	return s
}

func (s *inboxService) run(logger *slog.Logger) {
	defer s.wg.Done()

	pending := make([]notification.Draft, 0, s.config.BatchSize)
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := s.persist(pending); err != nil {
			logger.Error("Failed to store notifications", "count", len(pending), "error", err)
		} else {
			logger.Debug("Stored notifications", "count", len(pending))
		}
		pending = pending[:0]
	}
	add := func(d notification.Draft) {
		pending = append(pending, d)
		if len(pending) >= s.config.BatchSize {
			flush()
		}
	}

	for {
		select {
		case d := <-s.queue:
			add(d)
		case <-ticker.C:
			flush()
		case <-s.stopped:
			for {
				select {
				case d := <-s.queue:
					add(d)
				default:
					flush()
					return
				}
			}
		}
	}
}

// persist stores the drafts and publishes them once they have ids.
func (s *inboxService) persist(drafts []notification.Draft) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	now := s.now()
	entries := make([]*notification.Notification, len(drafts))
	for i, d := range drafts {
		entries[i] = d.ToNotification(now)
	}
	if err := s.repo.Save(ctx, entries...); err != nil {
		return err
	}
	for _, n := range entries {
		s.hub.Publish(n.RecipientID, sse.Event{
			UserID: n.RecipientID,
			Event:  eventNotification,
			Data:   notification.NewNotificationResponse(*n),
		})
	}
	return nil
}

// Enqueue implements notification.Service. A full queue falls back to a
// synchronous write so nothing is dropped silently.
func (s *inboxService) Enqueue(ctx context.Context, drafts ...notification.Draft) error {
	for _, d := range drafts {
		if !d.Type.IsValid() {
			return fmt.Errorf("%w: %q", notification.ErrInvalidNotificationType, d.Type)
		}
		enabled, err := s.repo.PushEnabled(ctx, d.RecipientID, d.Type)
		if err != nil {
			return err
		}
		if !enabled {
			continue
		}

		if err := s.handOff(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *inboxService) handOff(ctx context.Context, d notification.Draft) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return notification.ErrServiceStopped
	}

	select {
	case s.queue <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		slog.Warn("Notification queue full, writing synchronously", "recipient_id", d.RecipientID, "type", d.Type)
		return s.persist([]notification.Draft{d})
	}
}

func (s *inboxService) Inbox(ctx context.Context, filter notification.Filter) (*notification.InboxResponse, error) {
	filter.Normalize()

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, filter.RecipientID)
	if err != nil {
		return nil, err
	}

	items := make([]notification.NotificationResponse, len(entries))
	for i, n := range entries {
		items[i] = notification.NewNotificationResponse(n)
	}
	return &notification.InboxResponse{
		Notifications: items,
		Total:         total,
		UnreadCount:   unread,
		Page:          filter.Page,
		PageSize:      filter.PageSize,
	}, nil
}

func (s *inboxService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *inboxService) MarkRead(ctx context.Context, userID string, ids []string) (int, error) {
	return s.repo.MarkRead(ctx, userID, ids, s.now())
}

func (s *inboxService) Delete(ctx context.Context, userID, notificationID string) error {
	return s.repo.Delete(ctx, userID, notificationID)
}

// Preferences lists every type, filling the gaps with defaults.
func (s *inboxService) Preferences(ctx context.Context, userID string) ([]notification.PreferenceResponse, error) {
	saved, err := s.repo.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	byType := make(map[notification.Type]notification.Preference, len(saved))
	for _, p := range saved {
		byType[p.Type] = p
	}

	out := make([]notification.PreferenceResponse, 0, len(notification.Types()))
	for _, t := range notification.Types() {
		p, ok := byType[t]
		if !ok {
			p = notification.DefaultPreference(userID, t)
		}
		out = append(out, notification.PreferenceResponse{
			Type:         t,
			EmailEnabled: p.EmailEnabled,
			PushEnabled:  p.PushEnabled,
		})
	}
	return out, nil
}

func (s *inboxService) SetPreference(ctx context.Context, userID string, req notification.UpdatePreferenceRequest) error {
	return s.repo.SavePreference(ctx, notification.Preference{
		UserID:       userID,
		Type:         req.Type,
		EmailEnabled: req.EmailEnabled,
		PushEnabled:  req.PushEnabled,
		UpdatedAt:    s.now(),
	})
}

// Subscribe adapts the hub channel to typed stream events. The returned
// channel closes when ctx ends or the hub drops the subscriber.
func (s *inboxService) Subscribe(ctx context.Context, userID string) (<-chan notification.StreamEvent, func()) {
	raw, unsubscribe := s.hub.Subscribe(userID)
	out := make(chan notification.StreamEvent, cap(raw))

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-raw:
				if !ok {
					return
				}
				data, ok := ev.Data.(notification.NotificationResponse)
				if !ok {
					continue
				}
				select {
				case out <- notification.StreamEvent{Event: ev.Event, Data: data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, unsubscribe
}

// Stop drains the queue and waits for the writers. Safe to call twice.
func (s *inboxService) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.stopped)
		s.mu.Unlock()
		s.wg.Wait()
		slog.Info("Notification service stopped")
	})
}
