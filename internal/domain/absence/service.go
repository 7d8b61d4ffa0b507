package absence

import (
	"context"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   user.Role
}

func (a Actor) Can(p user.Permission) bool {
	return a.Role != nil && user.HasPermission(a.Role, p)
}

// Notifier is informed after every committed transition.
type Notifier interface {
	AbsenceStatusChanged(ctx context.Context, change StatusChange) error
}

type Service interface {
	// Validate runs the validator against current ledgers without reserving.
	Validate(ctx context.Context, actor Actor, candidate AbsenceRequest) (AbsenceRequest, error)
	Submit(ctx context.Context, actor Actor, candidate AbsenceRequest) (AbsenceRequest, error)
	Decide(ctx context.Context, actor Actor, requestID string, approve bool, reason string) (AbsenceRequest, error)
	Withdraw(ctx context.Context, actor Actor, requestID string) (AbsenceRequest, error)
	Get(ctx context.Context, actor Actor, requestID string) (AbsenceRequest, error)
	List(ctx context.Context, actor Actor, filter Filter) ([]AbsenceRequest, int64, error)

	Remaining(ctx context.Context, userID string, kind PeriodKind, periodKey string) (decimal.Decimal, error)
	Ledger(ctx context.Context, actor Actor, userID string, kind PeriodKind, periodKey string) (QuotaLedger, error)
	Summary(ctx context.Context, actor Actor, userID string, at time.Time) (QuotaSummary, error)

	Sweep(ctx context.Context, now time.Time) (SweepResult, error)
	Certificate(ctx context.Context, actor Actor, requestID string) ([]byte, error)
	Location() *time.Location
}
