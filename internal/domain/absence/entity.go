package absence

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the two variants of an absence request.
type Kind string

const (
	KindLeave      Kind = "leave"
	KindPermission Kind = "permission"
)

func (k Kind) IsValid() bool {
	return k == KindLeave || k == KindPermission
}

// PeriodKind returns the accounting period the kind is charged against.
func (k Kind) PeriodKind() PeriodKind {
	if k == KindPermission {
		return PeriodMonthlyPermission
	}
	return PeriodAnnualLeave
}

type Category string

const (
	CategoryAnnuel        Category = "annuel"
	CategoryMaladie       Category = "maladie"
	CategoryMaternite     Category = "maternite"
	CategoryExceptionnel  Category = "exceptionnel"
	CategoryPersonnel     Category = "personnel"
	CategoryProfessionnel Category = "professionnel"
)

var categoriesByKind = map[Kind][]Category{
	KindLeave:      {CategoryAnnuel, CategoryMaladie, CategoryMaternite, CategoryExceptionnel},
	KindPermission: {CategoryPersonnel, CategoryProfessionnel, CategoryExceptionnel},
}

// Categories lists the categories allowed for a kind.
func Categories(k Kind) []Category {
	return append([]Category(nil), categoriesByKind[k]...)
}

// BelongsTo reports whether the category is allowed for the given kind.
func (c Category) BelongsTo(k Kind) bool {
	for _, allowed := range categoriesByKind[k] {
		if c == allowed {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRefused   Status = "refused"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusWithdrawn Status = "withdrawn"
)

// IsTerminal reports whether no transition leaves this status.
func (s Status) IsTerminal() bool {
	return s == StatusRefused || s == StatusCompleted || s == StatusWithdrawn
}

// Reserves reports whether a request in this status holds reserved units.
func (s Status) Reserves() bool { return s == StatusPending }

// Consumes reports whether a request in this status has committed its units.
func (s Status) Consumes() bool {
	return s == StatusApproved || s == StatusActive || s == StatusCompleted
}

// Period is the absence window. Leave periods hold civil dates (UTC
// midnight, end inclusive); permission periods hold two instants on the
// same calendar day.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) IsZero() bool {
	return p.Start.IsZero() || p.End.IsZero()
}

type EmergencyContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Attachment is an opaque reference to a stored document.
type Attachment struct {
	Reference   string `json:"reference"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// AbsenceRequest unifies leave and permission requests.
type AbsenceRequest struct {
	ID               string
	UserID           string
	Kind             Kind
	Category         Category
	Period           Period
	RequestedUnits   decimal.Decimal
	Justification    string
	EmergencyContact *EmergencyContact
	Attachments      []Attachment
	Status           Status
	SubmittedAt      time.Time
	DecidedAt        *time.Time
	DecidedBy        *string
	RefusalReason    *string
	WithdrawnAt      *time.Time
	UpdatedAt        time.Time
}

// Window returns the half-open interval [start, end) covered by the request
// in loc. Leave dates are civil dates, so the window runs from midnight of
// the first day to midnight after the last one.
func (r AbsenceRequest) Window(loc *time.Location) (time.Time, time.Time) {
	if r.Kind == KindLeave {
		s, e := r.Period.Start, r.Period.End
		start := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
		end := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		return start, end
	}
	return r.Period.Start.In(loc), r.Period.End.In(loc)
}

// IsDecided reports whether the decision pair has been recorded.
func (r AbsenceRequest) IsDecided() bool {
	return r.DecidedBy != nil && r.DecidedAt != nil
}

// StatusChange is handed to the notifier after every transition.
type StatusChange struct {
	RequestID     string
	UserID        string
	Kind          Kind
	Category      Category
	Period        Period
	NewStatus     Status
	Units         decimal.Decimal
	ActorID       string
	RefusalReason *string
	OccurredAt    time.Time
}

// Filter narrows List queries. Zero values mean no constraint.
type Filter struct {
	UserID   string
	Kind     Kind
	Status   Status
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

func (f *Filter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}
