package absence

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// ============= Request DTOs =============

type EmergencyContactRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Phone string `json:"phone" validate:"required,max=32"`
}

// SubmitLeaveRequest is the payload of a leave submission. Presence of the
// business fields is checked by the engine so that each failure carries its
// own code; Validate only rejects malformed values.
type SubmitLeaveRequest struct {
	UserID           string                   `json:"user_id,omitempty" validate:"omitempty,max=64"`
	Category         string                   `json:"category" validate:"omitempty,oneof=annuel maladie maternite exceptionnel"`
	StartDate        string                   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate          string                   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Justification    string                   `json:"justification" validate:"max=2000"`
	EmergencyContact *EmergencyContactRequest `json:"emergency_contact,omitempty" validate:"omitempty"`
	Attachments      []Attachment             `json:"-"`
}

func (r *SubmitLeaveRequest) Validate() error {
	if err := validator.Struct(r); err != nil {
		return err
	}
	if r.EmergencyContact != nil && !validator.IsValidPhoneNumber(r.EmergencyContact.Phone) {
		return validator.ValidationErrors{{Field: "emergency_contact.phone", Message: "phone must be a valid phone number"}}
	}
	return nil
}

// ToCandidate builds the unsaved request owned by userID.
func (r *SubmitLeaveRequest) ToCandidate(userID string) AbsenceRequest {
	c := AbsenceRequest{
		UserID:           userID,
		Kind:             KindLeave,
		Category:         Category(r.Category),
		Justification:    strings.TrimSpace(r.Justification),
		EmergencyContact: r.EmergencyContact.toEntity(),
		Attachments:      r.Attachments,
	}
	start, okStart := validator.IsValidDate(r.StartDate)
	end, okEnd := validator.IsValidDate(r.EndDate)
	if okStart && okEnd {
		c.Period = Period{Start: start, End: end}
	}
	return c
}

type SubmitPermissionRequest struct {
	UserID           string                   `json:"user_id,omitempty" validate:"omitempty,max=64"`
	Category         string                   `json:"category" validate:"omitempty,oneof=personnel professionnel exceptionnel"`
	Date             string                   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime        string                   `json:"start_time" validate:"omitempty,clock"`
	EndTime          string                   `json:"end_time" validate:"omitempty,clock"`
	Justification    string                   `json:"justification" validate:"max=2000"`
	EmergencyContact *EmergencyContactRequest `json:"emergency_contact,omitempty" validate:"omitempty"`
	Attachments      []Attachment             `json:"-"`
}

func (r *SubmitPermissionRequest) Validate() error {
	if err := validator.Struct(r); err != nil {
		return err
	}
	if r.EmergencyContact != nil && !validator.IsValidPhoneNumber(r.EmergencyContact.Phone) {
		return validator.ValidationErrors{{Field: "emergency_contact.phone", Message: "phone must be a valid phone number"}}
	}
	return nil
}

// ToCandidate builds the unsaved request owned by userID. Wall-clock times
// are interpreted in loc.
func (r *SubmitPermissionRequest) ToCandidate(userID string, loc *time.Location) AbsenceRequest {
	c := AbsenceRequest{
		UserID:           userID,
		Kind:             KindPermission,
		Category:         Category(r.Category),
		Justification:    strings.TrimSpace(r.Justification),
		EmergencyContact: r.EmergencyContact.toEntity(),
		Attachments:      r.Attachments,
	}
	day, okDay := validator.IsValidDate(r.Date)
	start, okStart := validator.IsValidClock(r.StartTime)
	end, okEnd := validator.IsValidClock(r.EndTime)
	if okDay && okStart && okEnd {
		c.Period = Period{
			Start: time.Date(day.Year(), day.Month(), day.Day(), start.Hour(), start.Minute(), 0, 0, loc),
			End:   time.Date(day.Year(), day.Month(), day.Day(), end.Hour(), end.Minute(), 0, 0, loc),
		}
	}
	return c
}

func (e *EmergencyContactRequest) toEntity() *EmergencyContact {
	if e == nil {
		return nil
	}
	return &EmergencyContact{Name: strings.TrimSpace(e.Name), Phone: strings.TrimSpace(e.Phone)}
}

type RefuseRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (r *RefuseRequest) Validate() error {
	return validator.Struct(r)
}

type ListRequest struct {
	Kind     string `json:"kind" validate:"omitempty,oneof=leave permission"`
	Status   string `json:"status" validate:"omitempty,oneof=pending approved refused active completed withdrawn"`
	UserID   string `json:"user_id" validate:"omitempty,max=64"`
	From     string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `json:"to" validate:"omitempty,datetime=2006-01-02"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

func (r *ListRequest) Validate() error {
	return validator.Struct(r)
}

func (r *ListRequest) ToFilter() Filter {
	f := Filter{
		UserID:   r.UserID,
		Kind:     Kind(r.Kind),
		Status:   Status(r.Status),
		Page:     r.Page,
		PageSize: r.PageSize,
	}
	if t, ok := validator.IsValidDate(r.From); ok {
		f.From = &t
	}
	if t, ok := validator.IsValidDate(r.To); ok {
		f.To = &t
	}
	f.Normalize()
	return f
}

// ============= Response DTOs =============

type AbsenceResponse struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Kind             Kind              `json:"kind"`
	Category         Category          `json:"category"`
	StartDate        *string           `json:"start_date,omitempty"`
	EndDate          *string           `json:"end_date,omitempty"`
	Date             *string           `json:"date,omitempty"`
	StartTime        *string           `json:"start_time,omitempty"`
	EndTime          *string           `json:"end_time,omitempty"`
	RequestedUnits   decimal.Decimal   `json:"requested_units"`
	Justification    string            `json:"justification"`
	EmergencyContact *EmergencyContact `json:"emergency_contact,omitempty"`
	Attachments      []Attachment      `json:"attachments"`
	Status           Status            `json:"status"`
	SubmittedAt      time.Time         `json:"submitted_at"`
	DecidedAt        *time.Time        `json:"decided_at,omitempty"`
	DecidedBy        *string           `json:"decided_by,omitempty"`
	RefusalReason    *string           `json:"refusal_reason,omitempty"`
	WithdrawnAt      *time.Time        `json:"withdrawn_at,omitempty"`
}

// NewAbsenceResponse renders a request; permission times are shown in loc.
func NewAbsenceResponse(r AbsenceRequest, loc *time.Location) AbsenceResponse {
	resp := AbsenceResponse{
		ID:               r.ID,
		UserID:           r.UserID,
		Kind:             r.Kind,
		Category:         r.Category,
		RequestedUnits:   r.RequestedUnits,
		Justification:    r.Justification,
		EmergencyContact: r.EmergencyContact,
		Attachments:      r.Attachments,
		Status:           r.Status,
		SubmittedAt:      r.SubmittedAt,
		DecidedAt:        r.DecidedAt,
		DecidedBy:        r.DecidedBy,
		RefusalReason:    r.RefusalReason,
		WithdrawnAt:      r.WithdrawnAt,
	}
	if resp.Attachments == nil {
		resp.Attachments = []Attachment{}
	}
	if r.Kind == KindLeave {
		start := r.Period.Start.Format("2006-01-02")
		end := r.Period.End.Format("2006-01-02")
		resp.StartDate, resp.EndDate = &start, &end
	} else {
		s, e := r.Period.Start.In(loc), r.Period.End.In(loc)
		date := s.Format("2006-01-02")
		startTime, endTime := s.Format("15:04"), e.Format("15:04")
		resp.Date, resp.StartTime, resp.EndTime = &date, &startTime, &endTime
	}
	return resp
}

type ListAbsenceResponse struct {
	TotalCount int64             `json:"total_count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
	Showing    string            `json:"showing"`
	Requests   []AbsenceResponse `json:"requests"`
}

type QuotaLedgerResponse struct {
	UserID     string          `json:"user_id"`
	PeriodKind PeriodKind      `json:"period_kind"`
	PeriodKey  string          `json:"period_key"`
	Allotted   decimal.Decimal `json:"allotted"`
	Consumed   decimal.Decimal `json:"consumed"`
	Reserved   decimal.Decimal `json:"reserved"`
	Remaining  decimal.Decimal `json:"remaining"`
}

func NewQuotaLedgerResponse(l QuotaLedger) QuotaLedgerResponse {
	return QuotaLedgerResponse{
		UserID:     l.UserID,
		PeriodKind: l.PeriodKind,
		PeriodKey:  l.PeriodKey,
		Allotted:   l.Allotted,
		Consumed:   l.Consumed,
		Reserved:   l.Reserved,
		Remaining:  l.Remaining(),
	}
}

// QuotaSummary pairs the current leave year with the current permission month.
type QuotaSummary struct {
	AnnualLeave       QuotaLedger
	MonthlyPermission QuotaLedger
}

type QuotaSummaryResponse struct {
	AnnualLeave       QuotaLedgerResponse `json:"annual_leave"`
	MonthlyPermission QuotaLedgerResponse `json:"monthly_permission"`
}

func NewQuotaSummaryResponse(s QuotaSummary) QuotaSummaryResponse {
	return QuotaSummaryResponse{
		AnnualLeave:       NewQuotaLedgerResponse(s.AnnualLeave),
		MonthlyPermission: NewQuotaLedgerResponse(s.MonthlyPermission),
	}
}

// SweepResult counts the transitions of one sweep run.
type SweepResult struct {
	Activated int `json:"activated"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
