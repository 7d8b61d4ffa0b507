package auth

import (
	"context"
	"time"
)

// SessionStore holds login sessions. Save replaces an existing session with
// the same ID and keeps it until ExpiresAt.
type SessionStore interface {
	Save(ctx context.Context, session LoginSession) error
	Get(ctx context.Context, id string) (LoginSession, error)
	Delete(ctx context.Context, id string) error
	// IncrementAttempts atomically counts one more code attempt against the
	// session and returns the new total. Save resets the count.
	IncrementAttempts(ctx context.Context, session LoginSession) (int, error)
	// Consume deletes the session and fails with ErrSessionNotFound unless
	// this call was the one that removed it.
	Consume(ctx context.Context, id string) error
	ListPending(ctx context.Context) ([]LoginSession, error)
	// DeleteExpired drops sessions (or index entries) past their expiry and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
