package absence

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallingRepository holds the first ListOverlapping call until released,
// failing it early if its ctx is cancelled the way a database driver would.
type stallingRepository struct {
	absence.Repository
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (r *stallingRepository) ListOverlapping(ctx context.Context, userID string, kind absence.Kind, from, to time.Time) ([]absence.AbsenceRequest, error) {
	if r.calls.Add(1) == 1 {
		close(r.entered)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.release:
		}
	}
	return r.Repository.ListOverlapping(ctx, userID, kind, from, to)
}

func TestQuotaTracker_CancelledCallerDoesNotFailSharedRead(t *testing.T) {
	repo := &stallingRepository{
		Repository: memory.NewAbsenceStore(time.UTC),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	policy := absence.DefaultPolicy()
	policy.Location = time.UTC
	q := NewQuotaTracker(repo, policy)
	key := absence.LedgerKey{UserID: "trainee-1", PeriodKind: absence.PeriodAnnualLeave, PeriodKey: "2025"}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := q.Ledger(leaderCtx, key)
		leaderErr <- err
	}()
	<-repo.entered

	type result struct {
		ledger absence.QuotaLedger
		err    error
	}
	followerDone := make(chan result, 1)
	go func() {
		l, err := q.Ledger(context.Background(), key)
		followerDone <- result{l, err}
	}()
	// Let the follower join the in-flight read before the leader gives up.
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(repo.release)
	select {
	case res := <-followerDone:
		require.NoError(t, res.err)
		assert.True(t, decimal.NewFromInt(30).Equal(res.ledger.Remaining()))
	case <-time.After(time.Second):
		t.Fatal("follower did not return")
	}
}
