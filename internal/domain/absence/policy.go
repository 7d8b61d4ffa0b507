package absence

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Policy holds the business constants of the engine. The hour thresholds
// used to bucket permissions into day units are policy, not derived math.
type Policy struct {
	AnnualLeaveAllotment       decimal.Decimal
	MonthlyPermissionAllotment decimal.Decimal
	MinLeaveDays               decimal.Decimal
	MaxPermissionDays          decimal.Decimal
	HalfDayMaxHours            decimal.Decimal
	FullDayMaxHours            decimal.Decimal
	HoursPerDay                decimal.Decimal
	MaxAttachmentBytes         int64
	MaxAttachments             int
	Location                   *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		AnnualLeaveAllotment:       decimal.NewFromInt(30),
		MonthlyPermissionAllotment: decimal.NewFromInt(5),
		MinLeaveDays:               decimal.NewFromInt(10),
		MaxPermissionDays:          decimal.NewFromInt(5),
		HalfDayMaxHours:            decimal.NewFromInt(4),
		FullDayMaxHours:            decimal.NewFromInt(8),
		HoursPerDay:                decimal.NewFromInt(8),
		MaxAttachmentBytes:         5 << 20,
		MaxAttachments:             5,
		Location:                   time.UTC,
	}
}

// Allotment returns the ceiling for a period kind.
func (p Policy) Allotment(kind PeriodKind) decimal.Decimal {
	if kind == PeriodMonthlyPermission {
		return p.MonthlyPermissionAllotment
	}
	return p.AnnualLeaveAllotment
}

func (p Policy) Loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

var wordContentTypes = []string{
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// AllowsContentType reports whether an attachment media type is accepted:
// any image, PDF, or Word document.
func AllowsContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if strings.HasPrefix(ct, "image/") && len(ct) > len("image/") {
		return true
	}
	if ct == "application/pdf" {
		return true
	}
	for _, w := range wordContentTypes {
		if ct == w {
			return true
		}
	}
	return false
}
