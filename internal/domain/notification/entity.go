package notification

import (
	"slices"
	"time"
)

// Type classifies an inbox entry by the absence transition that produced it.
type Type string

const (
	TypeAbsenceSubmitted Type = "absence_submitted"
	TypeAbsenceToReview  Type = "absence_to_review"
	TypeAbsenceApproved  Type = "absence_approved"
	TypeAbsenceRefused   Type = "absence_refused"
	TypeAbsenceWithdrawn Type = "absence_withdrawn"
	TypeAbsenceStarted   Type = "absence_started"
	TypeAbsenceCompleted Type = "absence_completed"
)

var allTypes = []Type{
	TypeAbsenceSubmitted,
	TypeAbsenceToReview,
	TypeAbsenceApproved,
	TypeAbsenceRefused,
	TypeAbsenceWithdrawn,
	TypeAbsenceStarted,
	TypeAbsenceCompleted,
}

// Types lists every known type in display order.
func Types() []Type {
	return slices.Clone(allTypes)
}

func (t Type) IsValid() bool {
	return slices.Contains(allTypes, t)
}

// Notification is one inbox entry. RequestID points at the absence request
// it is about; SenderID is nil for system transitions.
type Notification struct {
	ID          string
	RecipientID string
	SenderID    *string
	RequestID   *string
	Type        Type
	Title       string
	Message     string
	Data        map[string]interface{}
	ReadAt      *time.Time
	CreatedAt   time.Time
}

func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}

// Preference is a user's opt-out for one type. Absent rows mean both
// channels are on.
type Preference struct {
	UserID       string
	Type         Type
	EmailEnabled bool
	PushEnabled  bool
	UpdatedAt    time.Time
}

// DefaultPreference is what a user gets before saving anything.
func DefaultPreference(userID string, t Type) Preference {
	return Preference{UserID: userID, Type: t, EmailEnabled: true, PushEnabled: true}
}

// Filter selects a page of a recipient's inbox.
type Filter struct {
	RecipientID string
	UnreadOnly  bool
	Type        Type
	RequestID   string
	Page        int
	PageSize    int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalize clamps paging to sane bounds.
func (f *Filter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > maxPageSize {
		f.PageSize = defaultPageSize
	}
}

func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Matches reports whether n belongs to the filtered inbox.
func (f Filter) Matches(n Notification) bool {
	if n.RecipientID != f.RecipientID {
		return false
	}
	if f.UnreadOnly && n.IsRead() {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.RequestID != "" && (n.RequestID == nil || *n.RequestID != f.RequestID) {
		return false
	}
	return true
}
