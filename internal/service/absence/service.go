package absence

import (
	"context"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/shopspring/decimal"
)

// SystemActorID identifies transitions made by the sweep job.
const SystemActorID = "system"

type AbsenceServiceImpl struct {
	tx       absence.Transactor
	repo     absence.Repository
	users    user.UserRepository
	notifier absence.Notifier
	policy   absence.Policy

	validator    *RequestValidator
	quota        *QuotaTracker
	certificates *CertificateRenderer
	now          func() time.Time
}

// NewAbsenceService wires the engine. users and notifier may be nil.
func NewAbsenceService(
	tx absence.Transactor,
	repo absence.Repository,
	users user.UserRepository,
	notifier absence.Notifier,
	policy absence.Policy,
) *AbsenceServiceImpl {
	return &AbsenceServiceImpl{
		tx:           tx,
		repo:         repo,
		users:        users,
		notifier:     notifier,
		policy:       policy,
		validator:    NewRequestValidator(policy),
		quota:        NewQuotaTracker(repo, policy),
		certificates: NewCertificateRenderer(policy.Loc()),
		now:          time.Now,
	}
}

// WithClock replaces the time source.
func (s *AbsenceServiceImpl) WithClock(now func() time.Time) *AbsenceServiceImpl {
	s.now = now
	return s
}

func (s *AbsenceServiceImpl) Location() *time.Location {
	return s.policy.Loc()
}

// Remaining implements absence.Service.
func (s *AbsenceServiceImpl) Remaining(ctx context.Context, userID string, kind absence.PeriodKind, periodKey string) (decimal.Decimal, error) {
	return s.quota.Remaining(ctx, userID, kind, periodKey)
}

// Ledger implements absence.Service.
func (s *AbsenceServiceImpl) Ledger(ctx context.Context, actor absence.Actor, userID string, kind absence.PeriodKind, periodKey string) (absence.QuotaLedger, error) {
	if err := s.authorizeQuotaRead(actor, userID); err != nil {
		return absence.QuotaLedger{}, err
	}
	return s.quota.Ledger(ctx, absence.LedgerKey{UserID: userID, PeriodKind: kind, PeriodKey: periodKey})
}

// Summary implements absence.Service.
func (s *AbsenceServiceImpl) Summary(ctx context.Context, actor absence.Actor, userID string, at time.Time) (absence.QuotaSummary, error) {
	if err := s.authorizeQuotaRead(actor, userID); err != nil {
		return absence.QuotaSummary{}, err
	}
	local := at.In(s.policy.Loc())

	leave, err := s.quota.Ledger(ctx, absence.LedgerKey{
		UserID:     userID,
		PeriodKind: absence.PeriodAnnualLeave,
		PeriodKey:  absence.PeriodKeyAt(absence.PeriodAnnualLeave, local),
	})
	if err != nil {
		return absence.QuotaSummary{}, err
	}
	permission, err := s.quota.Ledger(ctx, absence.LedgerKey{
		UserID:     userID,
		PeriodKind: absence.PeriodMonthlyPermission,
		PeriodKey:  absence.PeriodKeyAt(absence.PeriodMonthlyPermission, local),
	})
	if err != nil {
		return absence.QuotaSummary{}, err
	}
	return absence.QuotaSummary{AnnualLeave: leave, MonthlyPermission: permission}, nil
}

func (s *AbsenceServiceImpl) authorizeQuotaRead(actor absence.Actor, userID string) error {
	if actor.UserID == userID && actor.Can(user.PermissionAbsenceReadOwn) {
		return nil
	}
	if actor.Can(user.PermissionQuotaReadAll) {
		return nil
	}
	return absence.ErrForbidden
}

// notify reports a committed transition. Failures are logged only; the
// transition stands.
func (s *AbsenceServiceImpl) notify(ctx context.Context, r absence.AbsenceRequest, actorID string) {
	if s.notifier == nil {
		return
	}
	change := absence.StatusChange{
		RequestID:     r.ID,
		UserID:        r.UserID,
		Kind:          r.Kind,
		Category:      r.Category,
		Period:        r.Period,
		NewStatus:     r.Status,
		Units:         r.RequestedUnits,
		ActorID:       actorID,
		RefusalReason: r.RefusalReason,
		OccurredAt:    s.now(),
	}
	if err := s.notifier.AbsenceStatusChanged(ctx, change); err != nil {
		slog.Error("Failed to dispatch absence status change",
			"request_id", r.ID,
			"status", r.Status,
			"user_id", r.UserID,
			"error", err,
		)
	}
}
