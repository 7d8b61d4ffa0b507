package notification

import (
	"context"
	"time"
)

type Repository interface {
	// Save inserts the notifications, assigning ids and timestamps when
	// missing.
	Save(ctx context.Context, notifications ...*Notification) error
	List(ctx context.Context, filter Filter) ([]Notification, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	// MarkRead stamps unread entries of the recipient; no ids means all of
	// them. It returns how many entries changed.
	MarkRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int, error)
	Delete(ctx context.Context, recipientID, id string) error

	Preferences(ctx context.Context, userID string) ([]Preference, error)
	SavePreference(ctx context.Context, pref Preference) error
	// PushEnabled defaults to true when the user saved nothing for t.
	PushEnabled(ctx context.Context, userID string, t Type) (bool, error)
}
