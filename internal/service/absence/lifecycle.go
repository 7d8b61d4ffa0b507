package absence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/google/uuid"
)

// Validate implements absence.Service. It reads the ledgers without taking
// any lock, so a success here is advisory only.
func (s *AbsenceServiceImpl) Validate(ctx context.Context, actor absence.Actor, candidate absence.AbsenceRequest) (absence.AbsenceRequest, error) {
	candidate, err := s.authorizeSubmit(ctx, actor, candidate)
	if err != nil {
		return candidate, err
	}
	return s.validate(ctx, candidate)
}

func (s *AbsenceServiceImpl) validate(ctx context.Context, candidate absence.AbsenceRequest) (absence.AbsenceRequest, error) {
	// Structural checks first: ledgers are only loaded for a well-formed period.
	checked, err := s.validator.Validate(candidate, nil)
	if err != nil && !errors.Is(err, absence.ErrInsufficientQuota) {
		return checked, err
	}
	ledgers, err := s.quota.ledgers(ctx, absence.AffectedPeriods(candidate, s.policy.Loc()))
	if err != nil {
		return candidate, err
	}
	return s.validator.Validate(candidate, ledgers)
}

// authorizeSubmit fills in the owner and checks the actor may submit for it.
// Submitting for someone else requires that user to exist.
func (s *AbsenceServiceImpl) authorizeSubmit(ctx context.Context, actor absence.Actor, candidate absence.AbsenceRequest) (absence.AbsenceRequest, error) {
	if !actor.Can(user.PermissionAbsenceSubmit) {
		return candidate, absence.ErrForbidden
	}
	if strings.TrimSpace(candidate.UserID) == "" {
		candidate.UserID = actor.UserID
	}
	if candidate.UserID == actor.UserID {
		return candidate, nil
	}
	if !actor.Can(user.PermissionAbsenceReadAll) {
		return candidate, absence.ErrForbidden
	}
	if s.users != nil {
		if _, err := s.users.GetByID(ctx, candidate.UserID); err != nil {
			if errors.Is(err, user.ErrUserNotFound) {
				return candidate, absence.ErrNotFound
			}
			return candidate, fmt.Errorf("failed to load request owner: %w", err)
		}
	}
	return candidate, nil
}

// Submit implements absence.Service. The quota check and the reservation
// happen under the ledger lock of every affected period, so two concurrent
// submissions cannot both draw on the same remaining units.
func (s *AbsenceServiceImpl) Submit(ctx context.Context, actor absence.Actor, candidate absence.AbsenceRequest) (absence.AbsenceRequest, error) {
	validated, err := s.Validate(ctx, actor, candidate)
	if err != nil {
		return absence.AbsenceRequest{}, err
	}

	keys := absence.AffectedPeriods(validated, s.policy.Loc())
	absence.SortLedgerKeys(keys)

	var created absence.AbsenceRequest
	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := s.lockLedgers(txCtx, keys); err != nil {
			return err
		}
		ledgers, err := s.quota.ledgers(txCtx, keys)
		if err != nil {
			return err
		}
		for _, ledger := range ledgers {
			units := absence.UnitsIn(validated, ledger.PeriodKind, ledger.PeriodKey, s.policy.Loc())
			if units.GreaterThan(ledger.Remaining()) {
				return &absence.QuotaExceededError{
					PeriodKey: ledger.PeriodKey,
					Requested: units,
					Remaining: ledger.Remaining(),
				}
			}
		}

		now := s.now()
		validated.ID = uuid.New().String()
		validated.Status = absence.StatusPending
		validated.SubmittedAt = now
		validated.UpdatedAt = now
		validated.DecidedAt, validated.DecidedBy, validated.RefusalReason, validated.WithdrawnAt = nil, nil, nil, nil

		created, err = s.repo.Create(txCtx, validated)
		if err != nil {
			return fmt.Errorf("failed to create absence request: %w", err)
		}
		return nil
	})
	if err != nil {
		return absence.AbsenceRequest{}, err
	}

	slog.Info("Absence request submitted",
		"request_id", created.ID,
		"user_id", created.UserID,
		"kind", created.Kind,
		"units", created.RequestedUnits.String(),
	)
	s.notify(ctx, created, actor.UserID)
	return created, nil
}

// Decide implements absence.Service. Approval moves the reserved units into
// consumed; refusal releases them. Both follow from the new status since the
// ledger is derived.
func (s *AbsenceServiceImpl) Decide(ctx context.Context, actor absence.Actor, requestID string, approve bool, reason string) (absence.AbsenceRequest, error) {
	if !actor.Can(user.PermissionAbsenceDecide) {
		return absence.AbsenceRequest{}, absence.ErrForbidden
	}
	reason = strings.TrimSpace(reason)

	var decided absence.AbsenceRequest
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.repo.GetByIDForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.Status != absence.StatusPending {
			return absence.ErrAlreadyDecided
		}
		if !approve && reason == "" {
			return absence.MissingField("refusal_reason")
		}
		if err := s.lockLedgers(txCtx, sortedPeriods(req, s.policy)); err != nil {
			return err
		}

		now := s.now()
		decidedBy := actor.UserID
		req.DecidedAt = &now
		req.DecidedBy = &decidedBy
		req.UpdatedAt = now
		if approve {
			req.Status = absence.StatusApproved
		} else {
			req.Status = absence.StatusRefused
			req.RefusalReason = &reason
		}

		if err := s.repo.Update(txCtx, req); err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}
		decided = req
		return nil
	})
	if err != nil {
		return absence.AbsenceRequest{}, err
	}

	slog.Info("Absence request decided",
		"request_id", decided.ID,
		"status", decided.Status,
		"decided_by", actor.UserID,
	)
	s.notify(ctx, decided, actor.UserID)
	return decided, nil
}

// Withdraw implements absence.Service. Only the owner may withdraw, and only
// while the request is pending.
func (s *AbsenceServiceImpl) Withdraw(ctx context.Context, actor absence.Actor, requestID string) (absence.AbsenceRequest, error) {
	var withdrawn absence.AbsenceRequest
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.repo.GetByIDForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.UserID != actor.UserID {
			return absence.ErrNotFound
		}
		if req.Status != absence.StatusPending {
			return absence.ErrAlreadyDecided
		}
		if err := s.lockLedgers(txCtx, sortedPeriods(req, s.policy)); err != nil {
			return err
		}

		now := s.now()
		req.Status = absence.StatusWithdrawn
		req.WithdrawnAt = &now
		req.UpdatedAt = now
		if err := s.repo.Update(txCtx, req); err != nil {
			return fmt.Errorf("failed to withdraw absence request: %w", err)
		}
		withdrawn = req
		return nil
	})
	if err != nil {
		return absence.AbsenceRequest{}, err
	}

	s.notify(ctx, withdrawn, actor.UserID)
	return withdrawn, nil
}

// Sweep implements absence.Service. It moves approved requests to active
// once their window opens and approved or active requests to completed once
// it has closed. A request whose window elapsed entirely between two runs
// goes straight to completed.
func (s *AbsenceServiceImpl) Sweep(ctx context.Context, now time.Time) (absence.SweepResult, error) {
	var result absence.SweepResult

	due, err := s.repo.ListDueForTransition(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to list requests due for transition: %w", err)
	}

	for _, candidate := range due {
		target, ok := s.nextStatus(candidate, now)
		if !ok {
			continue
		}

		var moved absence.AbsenceRequest
		err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			req, err := s.repo.GetByIDForUpdate(txCtx, candidate.ID)
			if err != nil {
				return err
			}
			// Re-check under the row lock; another run may have moved it.
			if next, ok := s.nextStatus(req, now); !ok || next != target {
				return errSkipTransition
			}
			req.Status = target
			req.UpdatedAt = now
			if err := s.repo.Update(txCtx, req); err != nil {
				return err
			}
			moved = req
			return nil
		})
		switch {
		case errors.Is(err, errSkipTransition):
			continue
		case err != nil:
			result.Failed++
			slog.Error("Failed to transition absence request",
				"request_id", candidate.ID,
				"target_status", target,
				"error", err,
			)
			continue
		}

		if target == absence.StatusActive {
			result.Activated++
		} else {
			result.Completed++
		}
		s.notify(ctx, moved, SystemActorID)
	}

	return result, nil
}

var errSkipTransition = errors.New("transition no longer applies")

// nextStatus returns the date-driven successor of an approved or active
// request at now.
func (s *AbsenceServiceImpl) nextStatus(r absence.AbsenceRequest, now time.Time) (absence.Status, bool) {
	if r.Status != absence.StatusApproved && r.Status != absence.StatusActive {
		return "", false
	}
	start, end := r.Window(s.policy.Loc())
	switch {
	case !now.Before(end):
		return absence.StatusCompleted, true
	case r.Status == absence.StatusApproved && !now.Before(start):
		return absence.StatusActive, true
	}
	return "", false
}

// Get implements absence.Service. Requests outside the caller's scope are
// reported as not found.
func (s *AbsenceServiceImpl) Get(ctx context.Context, actor absence.Actor, requestID string) (absence.AbsenceRequest, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return absence.AbsenceRequest{}, err
	}
	if req.UserID != actor.UserID && !actor.Can(user.PermissionAbsenceReadAll) {
		return absence.AbsenceRequest{}, absence.ErrNotFound
	}
	return req, nil
}

// List implements absence.Service.
func (s *AbsenceServiceImpl) List(ctx context.Context, actor absence.Actor, filter absence.Filter) ([]absence.AbsenceRequest, int64, error) {
	if !actor.Can(user.PermissionAbsenceReadAll) {
		if !actor.Can(user.PermissionAbsenceReadOwn) {
			return nil, 0, absence.ErrForbidden
		}
		filter.UserID = actor.UserID
	}
	filter.Normalize()
	return s.repo.List(ctx, filter)
}

func (s *AbsenceServiceImpl) lockLedgers(ctx context.Context, keys []absence.LedgerKey) error {
	for _, key := range keys {
		if err := s.repo.LockLedger(ctx, key); err != nil {
			return fmt.Errorf("failed to lock ledger %s: %w", key, err)
		}
	}
	return nil
}

func sortedPeriods(r absence.AbsenceRequest, policy absence.Policy) []absence.LedgerKey {
	keys := absence.AffectedPeriods(r, policy.Loc())
	absence.SortLedgerKeys(keys)
	return keys
}
