package absence

import (
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/shopspring/decimal"
)

var (
	halfDay = decimal.NewFromFloat(0.5)
	oneDay  = decimal.NewFromInt(1)
)

// LeaveUnits counts calendar days between two dates, both inclusive.
func LeaveUnits(start, end time.Time) decimal.Decimal {
	days := absence.CivilDate(end).Sub(absence.CivilDate(start)).Hours() / 24
	return decimal.NewFromInt(int64(days) + 1)
}

// PermissionHours is the length of a permission in hours, to the minute.
func PermissionHours(start, end time.Time) decimal.Decimal {
	minutes := int64(end.Sub(start) / time.Minute)
	return decimal.NewFromInt(minutes).Div(decimal.NewFromInt(60))
}

// PermissionUnits buckets an hour range into day units: up to the half-day
// threshold counts 0.5, up to the full-day threshold counts 1, and anything
// longer is rounded up to whole days of HoursPerDay. An empty or reversed
// range counts 0.
func PermissionUnits(start, end time.Time, policy absence.Policy) decimal.Decimal {
	hours := PermissionHours(start, end)
	switch {
	case !hours.IsPositive():
		return decimal.Zero
	case hours.LessThanOrEqual(policy.HalfDayMaxHours):
		return halfDay
	case hours.LessThanOrEqual(policy.FullDayMaxHours):
		return oneDay
	}
	return hours.Div(policy.HoursPerDay).Ceil()
}

// RequestedUnits derives the units of a request from its period.
func RequestedUnits(r absence.AbsenceRequest, policy absence.Policy) decimal.Decimal {
	if r.Kind == absence.KindLeave {
		return LeaveUnits(r.Period.Start, r.Period.End)
	}
	return PermissionUnits(r.Period.Start, r.Period.End, policy)
}
