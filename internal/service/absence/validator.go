package absence

import (
	"fmt"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// RequestValidator checks a candidate request against the policy and the
// ledgers it would draw from. It has no side effects.
type RequestValidator struct {
	policy absence.Policy
}

func NewRequestValidator(policy absence.Policy) *RequestValidator {
	return &RequestValidator{policy: policy}
}

// Validate returns the candidate with RequestedUnits populated, or the
// first failing check. ledgers must hold one entry per period returned by
// absence.AffectedPeriods; a missing entry is treated as an untouched
// period with the full allotment.
func (v *RequestValidator) Validate(candidate absence.AbsenceRequest, ledgers []absence.QuotaLedger) (absence.AbsenceRequest, error) {
	if err := v.checkRequired(candidate); err != nil {
		return candidate, err
	}
	if err := v.checkRange(candidate); err != nil {
		return candidate, err
	}

	candidate.RequestedUnits = RequestedUnits(candidate, v.policy)

	if err := v.checkBounds(candidate); err != nil {
		return candidate, err
	}
	if err := v.checkQuota(candidate, ledgers); err != nil {
		return candidate, err
	}
	if err := v.checkAttachments(candidate.Attachments); err != nil {
		return candidate, err
	}
	return candidate, nil
}

func (v *RequestValidator) checkRequired(c absence.AbsenceRequest) error {
	switch {
	case validator.IsEmpty(c.UserID):
		return absence.MissingField("user_id")
	case !c.Kind.IsValid():
		return absence.MissingField("kind")
	case c.Category == "" || !c.Category.BelongsTo(c.Kind):
		return absence.MissingField("category")
	case c.Period.IsZero():
		return absence.MissingField("period")
	case validator.IsEmpty(c.Justification):
		return absence.MissingField("justification")
	}
	if c.EmergencyContact != nil {
		if validator.IsEmpty(c.EmergencyContact.Name) {
			return absence.MissingField("emergency_contact.name")
		}
		if validator.IsEmpty(c.EmergencyContact.Phone) {
			return absence.MissingField("emergency_contact.phone")
		}
	}
	return nil
}

func (v *RequestValidator) checkRange(c absence.AbsenceRequest) error {
	if c.Kind == absence.KindLeave {
		if absence.CivilDate(c.Period.End).Before(absence.CivilDate(c.Period.Start)) {
			return absence.InvalidRange("end_date", "end_date must not be before start_date")
		}
		return nil
	}
	loc := v.policy.Loc()
	start, end := c.Period.Start.In(loc), c.Period.End.In(loc)
	if end.Before(start) {
		return absence.InvalidRange("end_time", "end_time must not be before start_time")
	}
	if !absence.CivilDate(start).Equal(absence.CivilDate(end)) {
		return absence.InvalidRange("end_time", "a permission must start and end on the same day")
	}
	return nil
}

func (v *RequestValidator) checkBounds(c absence.AbsenceRequest) error {
	units := c.RequestedUnits
	if c.Kind == absence.KindLeave {
		if units.LessThan(v.policy.MinLeaveDays) {
			return absence.DurationOutOfBounds(fmt.Sprintf("a leave must last at least %s days, got %s", v.policy.MinLeaveDays, units))
		}
		return nil
	}
	if !units.IsPositive() || units.GreaterThan(v.policy.MaxPermissionDays) {
		return absence.DurationOutOfBounds(fmt.Sprintf("a permission must last more than 0 and at most %s days, got %s", v.policy.MaxPermissionDays, units))
	}
	return nil
}

func (v *RequestValidator) checkQuota(c absence.AbsenceRequest, ledgers []absence.QuotaLedger) error {
	byKey := make(map[absence.LedgerKey]absence.QuotaLedger, len(ledgers))
	for _, l := range ledgers {
		byKey[l.Key()] = l
	}

	var failure *absence.ValidationError
	for _, key := range absence.AffectedPeriods(c, v.policy.Loc()) {
		ledger, ok := byKey[key]
		if !ok {
			ledger = absence.FoldLedger(key, v.policy.Allotment(key.PeriodKind), nil, v.policy.Loc())
		}
		units := absence.UnitsIn(c, key.PeriodKind, key.PeriodKey, v.policy.Loc())
		remaining := ledger.Remaining()
		if units.GreaterThan(remaining) {
			if failure == nil || remaining.LessThan(*failure.Remaining) {
				failure = absence.InsufficientQuota(key.PeriodKey, units, remaining)
			}
		}
	}
	if failure != nil {
		return failure
	}
	return nil
}

func (v *RequestValidator) checkAttachments(attachments []absence.Attachment) error {
	if v.policy.MaxAttachments > 0 && len(attachments) > v.policy.MaxAttachments {
		return absence.AttachmentRejected("attachments", fmt.Sprintf("at most %d attachments are allowed", v.policy.MaxAttachments))
	}
	limit := decimal.NewFromInt(v.policy.MaxAttachmentBytes).Div(decimal.NewFromInt(1 << 20))
	for i, a := range attachments {
		field := fmt.Sprintf("attachments[%d]", i)
		if validator.IsEmpty(a.Reference) {
			return absence.AttachmentRejected(field, "attachment reference is empty")
		}
		if a.Size <= 0 {
			return absence.AttachmentRejected(field, fmt.Sprintf("%s is empty", a.FileName))
		}
		if a.Size > v.policy.MaxAttachmentBytes {
			return absence.AttachmentRejected(field, fmt.Sprintf("%s exceeds the %s MiB limit", a.FileName, limit))
		}
		if !absence.AllowsContentType(a.ContentType) {
			return absence.AttachmentRejected(field, fmt.Sprintf("%s has unsupported type %q; only images, PDF and Word documents are accepted", a.FileName, a.ContentType))
		}
	}
	return nil
}
