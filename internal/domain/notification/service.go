package notification

import (
	"context"
)

type Service interface {
	// Enqueue hands drafts to the background writers. Drafts whose type the
	// recipient muted are dropped.
	Enqueue(ctx context.Context, drafts ...Draft) error

	Inbox(ctx context.Context, filter Filter) (*InboxResponse, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, ids []string) (int, error)
	Delete(ctx context.Context, userID, notificationID string) error

	Preferences(ctx context.Context, userID string) ([]PreferenceResponse, error)
	SetPreference(ctx context.Context, userID string, req UpdatePreferenceRequest) error

	Subscribe(ctx context.Context, userID string) (<-chan StreamEvent, func())

	Stop()
}
