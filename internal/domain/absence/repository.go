package absence

import (
	"context"
	"time"
)

// Transactor runs fn inside one transaction. Repository calls made with
// the context passed to fn join that transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Repository interface {
	Create(ctx context.Context, request AbsenceRequest) (AbsenceRequest, error)
	GetByID(ctx context.Context, id string) (AbsenceRequest, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (AbsenceRequest, error)
	Update(ctx context.Context, request AbsenceRequest) error
	// ListOverlapping returns the user's requests of the given kind whose
	// civil date span intersects [from, to).
	ListOverlapping(ctx context.Context, userID string, kind Kind, from, to time.Time) ([]AbsenceRequest, error)
	List(ctx context.Context, filter Filter) ([]AbsenceRequest, int64, error)
	// ListDueForTransition returns approved or active requests that started
	// at or before now.
	ListDueForTransition(ctx context.Context, now time.Time) ([]AbsenceRequest, error)
	// LockLedger serializes quota mutations for one user and period. It must
	// be called inside WithinTransaction and holds until it ends.
	LockLedger(ctx context.Context, key LedgerKey) error
}
