package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
)

// RateLimitPruner drops idle rate limiter buckets.
type RateLimitPruner interface {
	Prune() int
}

type AbsenceJobs struct {
	absenceService absence.Service
	authService    auth.AuthService
	limiter        RateLimitPruner
	sweepInterval  time.Duration
	cleanupExpired bool
	now            func() time.Time
}

// NewAbsenceJobs builds the background jobs. cleanupSessions should be true
// only when login sessions live in a store without native expiry.
// authService and limiter may be nil.
func NewAbsenceJobs(
	absenceService absence.Service,
	authService auth.AuthService,
	limiter RateLimitPruner,
	sweepInterval time.Duration,
	cleanupSessions bool,
) *AbsenceJobs {
	return &AbsenceJobs{
		absenceService: absenceService,
		authService:    authService,
		limiter:        limiter,
		sweepInterval:  sweepInterval,
		cleanupExpired: cleanupSessions,
		now:            time.Now,
	}
}

func (j *AbsenceJobs) RegisterJobs(scheduler *Scheduler) error {
	if err := scheduler.AddJob("absence_status_sweep", j.sweepInterval, j.SweepStatuses); err != nil {
		return err
	}
	if j.cleanupExpired && j.authService != nil {
		if err := scheduler.AddJob("login_session_cleanup", 5*time.Minute, j.CleanupLoginSessions); err != nil {
			return err
		}
	}
	if j.limiter != nil {
		if err := scheduler.AddJob("rate_limit_prune", 10*time.Minute, j.PruneRateLimits); err != nil {
			return err
		}
	}
	return nil
}

// SweepStatuses moves approved requests to active and active ones to
// completed once their window has started or ended.
func (j *AbsenceJobs) SweepStatuses(ctx context.Context) error {
	result, err := j.absenceService.Sweep(ctx, j.now())
	if err != nil {
		return fmt.Errorf("failed to sweep absence statuses: %w", err)
	}
	if result.Activated > 0 || result.Completed > 0 || result.Failed > 0 {
		slog.Info("Cron: absence sweep finished",
			"activated", result.Activated,
			"completed", result.Completed,
			"failed", result.Failed,
		)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d absence transitions failed", result.Failed)
	}
	return nil
}

func (j *AbsenceJobs) CleanupLoginSessions(ctx context.Context) error {
	removed, err := j.authService.CleanupExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to clean up login sessions: %w", err)
	}
	if removed > 0 {
		slog.Info("Cron: expired login sessions removed", "count", removed)
	}
	return nil
}

func (j *AbsenceJobs) PruneRateLimits(ctx context.Context) error {
	if pruned := j.limiter.Prune(); pruned > 0 {
		slog.Debug("Cron: idle rate limiters pruned", "count", pruned)
	}
	return nil
}
