package absence

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type PeriodKind string

const (
	PeriodAnnualLeave       PeriodKind = "annualLeave"
	PeriodMonthlyPermission PeriodKind = "monthlyPermission"
)

func (k PeriodKind) IsValid() bool {
	return k == PeriodAnnualLeave || k == PeriodMonthlyPermission
}

const (
	yearKeyLayout  = "2006"
	monthKeyLayout = "2006-01"
)

// QuotaLedger is the per-user, per-period view of allotted, consumed and
// reserved units. It is always derived from requests, never stored.
type QuotaLedger struct {
	UserID     string          `json:"user_id"`
	PeriodKind PeriodKind      `json:"period_kind"`
	PeriodKey  string          `json:"period_key"`
	Allotted   decimal.Decimal `json:"allotted"`
	Consumed   decimal.Decimal `json:"consumed"`
	Reserved   decimal.Decimal `json:"reserved"`
}

func (l QuotaLedger) Remaining() decimal.Decimal {
	return l.Allotted.Sub(l.Consumed).Sub(l.Reserved)
}

func (l QuotaLedger) Key() LedgerKey {
	return LedgerKey{UserID: l.UserID, PeriodKind: l.PeriodKind, PeriodKey: l.PeriodKey}
}

// LedgerKey identifies the serialization point for quota mutations.
type LedgerKey struct {
	UserID     string
	PeriodKind PeriodKind
	PeriodKey  string
}

func (k LedgerKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.UserID, k.PeriodKind, k.PeriodKey)
}

// SortLedgerKeys orders keys so that multi-period locks are always taken in
// the same order.
func SortLedgerKeys(keys []LedgerKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}

// CivilDate truncates t to its calendar date at UTC midnight.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PeriodKeyAt returns the accounting period key containing t.
func PeriodKeyAt(kind PeriodKind, t time.Time) string {
	if kind == PeriodMonthlyPermission {
		return t.Format(monthKeyLayout)
	}
	return t.Format(yearKeyLayout)
}

// PeriodBounds returns the civil-date interval [from, to) of a period key.
func PeriodBounds(kind PeriodKind, key string) (time.Time, time.Time, error) {
	switch kind {
	case PeriodAnnualLeave:
		from, err := time.Parse(yearKeyLayout, key)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid year period key %q: %w", key, err)
		}
		return from, from.AddDate(1, 0, 0), nil
	case PeriodMonthlyPermission:
		from, err := time.Parse(monthKeyLayout, key)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid month period key %q: %w", key, err)
		}
		return from, from.AddDate(0, 1, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown period kind %q", kind)
}

// CivilSpan returns the civil date range [from, to) a request occupies.
// Permission periods are converted to loc first.
func CivilSpan(r AbsenceRequest, loc *time.Location) (time.Time, time.Time) {
	if r.Kind == KindLeave {
		return CivilDate(r.Period.Start), CivilDate(r.Period.End).AddDate(0, 0, 1)
	}
	day := CivilDate(r.Period.Start.In(loc))
	return day, day.AddDate(0, 0, 1)
}

// AffectedPeriods lists every accounting period the request draws from.
func AffectedPeriods(r AbsenceRequest, loc *time.Location) []LedgerKey {
	kind := r.Kind.PeriodKind()
	from, to := CivilSpan(r, loc)
	if !to.After(from) {
		return nil
	}
	var keys []LedgerKey
	seen := make(map[string]bool)
	for d := from; d.Before(to); {
		key := PeriodKeyAt(kind, d)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, LedgerKey{UserID: r.UserID, PeriodKind: kind, PeriodKey: key})
		}
		if kind == PeriodMonthlyPermission {
			d = time.Date(d.Year(), d.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		} else {
			d = time.Date(d.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
		}
	}
	return keys
}

// UnitsIn returns the part of the request's units attributed to a period.
// A leave spanning two years is split by the number of its days falling in
// each year; a permission is charged entirely to its month.
func UnitsIn(r AbsenceRequest, kind PeriodKind, key string, loc *time.Location) decimal.Decimal {
	if r.Kind.PeriodKind() != kind {
		return decimal.Zero
	}
	pFrom, pTo, err := PeriodBounds(kind, key)
	if err != nil {
		return decimal.Zero
	}
	rFrom, rTo := CivilSpan(r, loc)
	if !rFrom.Before(pTo) || !rTo.After(pFrom) {
		return decimal.Zero
	}
	if r.Kind == KindPermission {
		return r.RequestedUnits
	}
	if !rFrom.Before(pFrom) && !rTo.After(pTo) {
		return r.RequestedUnits
	}
	start, end := rFrom, rTo
	if pFrom.After(start) {
		start = pFrom
	}
	if pTo.Before(end) {
		end = pTo
	}
	return decimal.NewFromInt(int64(end.Sub(start).Hours() / 24))
}

// FoldLedger derives a ledger from the requests of one user. Requests of
// other users or periods contribute nothing.
func FoldLedger(key LedgerKey, allotted decimal.Decimal, requests []AbsenceRequest, loc *time.Location) QuotaLedger {
	ledger := QuotaLedger{
		UserID:     key.UserID,
		PeriodKind: key.PeriodKind,
		PeriodKey:  key.PeriodKey,
		Allotted:   allotted,
		Consumed:   decimal.Zero,
		Reserved:   decimal.Zero,
	}
	for _, r := range requests {
		if r.UserID != key.UserID {
			continue
		}
		units := UnitsIn(r, key.PeriodKind, key.PeriodKey, loc)
		if units.IsZero() {
			continue
		}
		switch {
		case r.Status.Reserves():
			ledger.Reserved = ledger.Reserved.Add(units)
		case r.Status.Consumes():
			ledger.Consumed = ledger.Consumed.Add(units)
		}
	}
	return ledger
}
