package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/notification"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/training-center-backend-go/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftFor(recipient string, t notification.Type, requestID string) notification.Draft {
	return notification.Draft{
		RecipientID: recipient,
		RequestID:   &requestID,
		Type:        t,
		Title:       "Demande acceptée",
		Message:     "ok",
	}
}

func TestNotificationService_FlushesAndPushes(t *testing.T) {
	repo := memory.NewNotificationStore()
	svc := NewNotificationService(repo, sse.NewHub(10), Config{
		BatchSize:     10,
		FlushInterval: 10 * time.Millisecond,
		WorkerCount:   1,
		QueueSize:     10,
	})
	defer svc.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, unsubscribe := svc.Subscribe(ctx, "alice")
	defer unsubscribe()

	require.NoError(t, svc.Enqueue(context.Background(), draftFor("alice", notification.TypeAbsenceApproved, "req-1")))

	select {
	case ev := <-stream:
		assert.Equal(t, "notification", ev.Event)
		assert.Equal(t, notification.TypeAbsenceApproved, ev.Data.Type)
		require.NotNil(t, ev.Data.RequestID)
		assert.Equal(t, "req-1", *ev.Data.RequestID)
		assert.NotEmpty(t, ev.Data.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no stream event received")
	}

	inbox, err := svc.Inbox(context.Background(), notification.Filter{RecipientID: "alice", UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, inbox.Total)
	assert.Equal(t, 1, inbox.UnreadCount)
	assert.Equal(t, 20, inbox.PageSize)

	updated, err := svc.MarkRead(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	count, err := svc.UnreadCount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotificationService_MutedTypeIsSkipped(t *testing.T) {
	repo := memory.NewNotificationStore()
	svc := NewNotificationService(repo, sse.NewHub(10), Config{FlushInterval: 10 * time.Millisecond, WorkerCount: 1})

	require.NoError(t, svc.SetPreference(context.Background(), "alice", notification.UpdatePreferenceRequest{
		Type:         notification.TypeAbsenceStarted,
		EmailEnabled: true,
		PushEnabled:  false,
	}))
	require.NoError(t, svc.Enqueue(context.Background(),
		draftFor("alice", notification.TypeAbsenceStarted, "req-1"),
		draftFor("alice", notification.TypeAbsenceCompleted, "req-1"),
	))

	svc.Stop()

	inbox, err := svc.Inbox(context.Background(), notification.Filter{RecipientID: "alice"})
	require.NoError(t, err)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, notification.TypeAbsenceCompleted, inbox.Notifications[0].Type)

	prefs, err := svc.Preferences(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, prefs, len(notification.Types()))
	for _, p := range prefs {
		assert.Equal(t, p.Type != notification.TypeAbsenceStarted, p.PushEnabled, p.Type)
		assert.True(t, p.EmailEnabled)
	}
}

func TestNotificationService_StopDrainsQueue(t *testing.T) {
	repo := memory.NewNotificationStore()
	svc := NewNotificationService(repo, sse.NewHub(10), Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
		WorkerCount:   1,
		QueueSize:     10,
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Enqueue(context.Background(), draftFor("bob", notification.TypeAbsenceSubmitted, "req-1")))
	}
	svc.Stop()
	svc.Stop()

	count, err := repo.CountUnread(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	err = svc.Enqueue(context.Background(), draftFor("bob", notification.TypeAbsenceSubmitted, "req-1"))
	assert.ErrorIs(t, err, notification.ErrServiceStopped)
}

func TestNotificationService_EnqueueRacingStopLosesNothing(t *testing.T) {
	repo := memory.NewNotificationStore()
	svc := NewNotificationService(repo, sse.NewHub(10), Config{
		BatchSize:     5,
		FlushInterval: time.Hour,
		WorkerCount:   2,
		QueueSize:     4,
	})

	var (
		mu       sync.Mutex
		accepted int
		wg       sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := svc.Enqueue(context.Background(), draftFor("bob", notification.TypeAbsenceSubmitted, "req-1"))
				if errors.Is(err, notification.ErrServiceStopped) {
					return
				}
				if assert.NoError(t, err) {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	svc.Stop()
	wg.Wait()

	count, err := repo.CountUnread(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, accepted, count, "every accepted draft is stored")
}

func TestNotificationService_RejectsUnknownType(t *testing.T) {
	svc := NewNotificationService(memory.NewNotificationStore(), sse.NewHub(10), Config{WorkerCount: 1})
	defer svc.Stop()

	err := svc.Enqueue(context.Background(), draftFor("alice", notification.Type("payroll_ready"), "req-1"))
	assert.True(t, errors.Is(err, notification.ErrInvalidNotificationType))
}

func TestNotificationStore_InboxFilters(t *testing.T) {
	repo := memory.NewNotificationStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, d := range []notification.Draft{
		draftFor("alice", notification.TypeAbsenceSubmitted, "req-1"),
		draftFor("alice", notification.TypeAbsenceApproved, "req-1"),
		draftFor("alice", notification.TypeAbsenceSubmitted, "req-2"),
		draftFor("bob", notification.TypeAbsenceSubmitted, "req-3"),
	} {
		require.NoError(t, repo.Save(ctx, d.ToNotification(base.Add(time.Duration(i)*time.Minute))))
	}

	list, total, err := repo.List(ctx, notification.Filter{RecipientID: "alice", RequestID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, notification.TypeAbsenceApproved, list[0].Type, "newest first")

	_, total, err = repo.List(ctx, notification.Filter{RecipientID: "alice", Type: notification.TypeAbsenceSubmitted})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	page, total, err := repo.List(ctx, notification.Filter{RecipientID: "alice", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)

	updated, err := repo.MarkRead(ctx, "alice", []string{list[0].ID, "unknown"}, base)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	_, total, err = repo.List(ctx, notification.Filter{RecipientID: "alice", UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	assert.ErrorIs(t, repo.Delete(ctx, "bob", list[0].ID), notification.ErrNotificationNotFound)
	require.NoError(t, repo.Delete(ctx, "alice", list[0].ID))
}
