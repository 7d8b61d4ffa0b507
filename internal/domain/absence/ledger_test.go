package absence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func leave(userID string, start, end time.Time, units int64, status Status) AbsenceRequest {
	return AbsenceRequest{
		UserID:         userID,
		Kind:           KindLeave,
		Category:       CategoryAnnuel,
		Period:         Period{Start: start, End: end},
		RequestedUnits: decimal.NewFromInt(units),
		Status:         status,
	}
}

func TestPeriodBounds(t *testing.T) {
	from, to, err := PeriodBounds(PeriodAnnualLeave, "2025")
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.January, 1), from)
	assert.Equal(t, date(2026, time.January, 1), to)

	from, to, err = PeriodBounds(PeriodMonthlyPermission, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 1), from)
	assert.Equal(t, date(2024, time.March, 1), to)

	_, _, err = PeriodBounds(PeriodMonthlyPermission, "2024")
	assert.Error(t, err)
	_, _, err = PeriodBounds(PeriodAnnualLeave, "24")
	assert.Error(t, err)
	_, _, err = PeriodBounds(PeriodKind("weekly"), "2024")
	assert.Error(t, err)
}

func TestAffectedPeriods(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	t.Run("leave within one year", func(t *testing.T) {
		keys := AffectedPeriods(leave("u1", date(2025, 3, 3), date(2025, 3, 14), 12, StatusPending), paris)
		assert.Equal(t, []LedgerKey{{UserID: "u1", PeriodKind: PeriodAnnualLeave, PeriodKey: "2025"}}, keys)
	})

	t.Run("leave across new year", func(t *testing.T) {
		keys := AffectedPeriods(leave("u1", date(2024, 12, 24), date(2025, 1, 5), 13, StatusPending), paris)
		assert.Equal(t, []LedgerKey{
			{UserID: "u1", PeriodKind: PeriodAnnualLeave, PeriodKey: "2024"},
			{UserID: "u1", PeriodKind: PeriodAnnualLeave, PeriodKey: "2025"},
		}, keys)
	})

	t.Run("permission uses the local calendar day", func(t *testing.T) {
		// 23:30 UTC on May 31 is already June 1 in Paris.
		start := time.Date(2025, 5, 31, 23, 30, 0, 0, time.UTC)
		r := AbsenceRequest{
			UserID: "u1",
			Kind:   KindPermission,
			Period: Period{Start: start, End: start.Add(2 * time.Hour)},
		}
		keys := AffectedPeriods(r, paris)
		assert.Equal(t, []LedgerKey{{UserID: "u1", PeriodKind: PeriodMonthlyPermission, PeriodKey: "2025-06"}}, keys)
	})

	t.Run("reversed leave has no periods", func(t *testing.T) {
		assert.Empty(t, AffectedPeriods(leave("u1", date(2025, 3, 14), date(2025, 3, 3), 0, StatusPending), paris))
	})
}

func TestUnitsIn_SplitsLeaveAcrossYears(t *testing.T) {
	r := leave("u1", date(2024, 12, 24), date(2025, 1, 5), 13, StatusPending)

	assert.True(t, decimal.NewFromInt(8).Equal(UnitsIn(r, PeriodAnnualLeave, "2024", time.UTC)))
	assert.True(t, decimal.NewFromInt(5).Equal(UnitsIn(r, PeriodAnnualLeave, "2025", time.UTC)))
	assert.True(t, UnitsIn(r, PeriodAnnualLeave, "2026", time.UTC).IsZero())
	assert.True(t, UnitsIn(r, PeriodMonthlyPermission, "2024-12", time.UTC).IsZero())
}

func TestFoldLedger(t *testing.T) {
	key := LedgerKey{UserID: "u1", PeriodKind: PeriodAnnualLeave, PeriodKey: "2025"}
	requests := []AbsenceRequest{
		leave("u1", date(2025, 2, 3), date(2025, 2, 14), 12, StatusPending),
		leave("u1", date(2025, 4, 1), date(2025, 4, 10), 10, StatusApproved),
		leave("u1", date(2025, 5, 1), date(2025, 5, 10), 10, StatusRefused),
		leave("u1", date(2025, 6, 1), date(2025, 6, 10), 10, StatusWithdrawn),
		leave("u1", date(2024, 12, 29), date(2025, 1, 7), 10, StatusCompleted),
		leave("u2", date(2025, 7, 1), date(2025, 7, 10), 10, StatusPending),
	}

	ledger := FoldLedger(key, decimal.NewFromInt(30), requests, time.UTC)

	assert.True(t, decimal.NewFromInt(12).Equal(ledger.Reserved), "reserved = %s", ledger.Reserved)
	// 10 approved plus the 7 days of the cross-year leave falling in 2025.
	assert.True(t, decimal.NewFromInt(17).Equal(ledger.Consumed), "consumed = %s", ledger.Consumed)
	assert.True(t, decimal.NewFromInt(1).Equal(ledger.Remaining()), "remaining = %s", ledger.Remaining())
	assert.True(t, ledger.Allotted.Equal(ledger.Consumed.Add(ledger.Reserved).Add(ledger.Remaining())))
}

func TestSortLedgerKeys(t *testing.T) {
	keys := []LedgerKey{
		{UserID: "u2", PeriodKind: PeriodAnnualLeave, PeriodKey: "2025"},
		{UserID: "u1", PeriodKind: PeriodAnnualLeave, PeriodKey: "2025"},
		{UserID: "u1", PeriodKind: PeriodAnnualLeave, PeriodKey: "2024"},
	}
	SortLedgerKeys(keys)
	assert.Equal(t, "u1:annualLeave:2024", keys[0].String())
	assert.Equal(t, "u1:annualLeave:2025", keys[1].String())
	assert.Equal(t, "u2:annualLeave:2025", keys[2].String())
}

func TestWindow(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	start, end := leave("u1", date(2025, 3, 3), date(2025, 3, 14), 12, StatusApproved).Window(paris)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, paris), start)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, paris), end)
}
