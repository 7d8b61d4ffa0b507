package absence

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// QuotaTracker answers how many units remain for a user in a period by
// folding over the user's requests. It has no mutation API.
type QuotaTracker struct {
	repo   absence.Repository
	policy absence.Policy
	sf     singleflight.Group
}

func NewQuotaTracker(repo absence.Repository, policy absence.Policy) *QuotaTracker {
	return &QuotaTracker{repo: repo, policy: policy}
}

// Remaining returns allotted minus consumed minus reserved.
func (q *QuotaTracker) Remaining(ctx context.Context, userID string, kind absence.PeriodKind, periodKey string) (decimal.Decimal, error) {
	ledger, err := q.Ledger(ctx, absence.LedgerKey{UserID: userID, PeriodKind: kind, PeriodKey: periodKey})
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.Remaining(), nil
}

// Ledger folds the ledger for key. Concurrent reads of the same key share
// one query, which runs detached from any single caller's cancellation;
// each caller still gives up when its own ctx is done.
func (q *QuotaTracker) Ledger(ctx context.Context, key absence.LedgerKey) (absence.QuotaLedger, error) {
	shared := context.WithoutCancel(ctx)
	ch := q.sf.DoChan(key.String(), func() (interface{}, error) {
		return q.fold(shared, key)
	})
	select {
	case <-ctx.Done():
		return absence.QuotaLedger{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return absence.QuotaLedger{}, res.Err
		}
		return res.Val.(absence.QuotaLedger), nil
	}
}

// ledgers folds several ledgers. Inside a transaction it reads through the
// transaction and bypasses request sharing.
func (q *QuotaTracker) ledgers(ctx context.Context, keys []absence.LedgerKey) ([]absence.QuotaLedger, error) {
	out := make([]absence.QuotaLedger, 0, len(keys))
	for _, key := range keys {
		l, err := q.fold(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (q *QuotaTracker) fold(ctx context.Context, key absence.LedgerKey) (absence.QuotaLedger, error) {
	if !key.PeriodKind.IsValid() {
		return absence.QuotaLedger{}, fmt.Errorf("unknown period kind %q", key.PeriodKind)
	}
	from, to, err := absence.PeriodBounds(key.PeriodKind, key.PeriodKey)
	if err != nil {
		return absence.QuotaLedger{}, err
	}
	kind := absence.KindLeave
	if key.PeriodKind == absence.PeriodMonthlyPermission {
		kind = absence.KindPermission
	}
	requests, err := q.repo.ListOverlapping(ctx, key.UserID, kind, from, to)
	if err != nil {
		return absence.QuotaLedger{}, fmt.Errorf("failed to load requests for ledger %s: %w", key, err)
	}
	return absence.FoldLedger(key, q.policy.Allotment(key.PeriodKind), requests, q.policy.Loc()), nil
}
