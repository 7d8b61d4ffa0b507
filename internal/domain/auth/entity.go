package auth

import "time"

type SessionState string

const (
	// SessionAwaitingCode: password checked, no code issued yet.
	SessionAwaitingCode SessionState = "awaiting_code"
	// SessionCodeIssued: an admin issued a code the user has not entered yet.
	SessionCodeIssued SessionState = "code_issued"
)

// LoginSession is the pending half of a two-step login. It lives in one
// store and disappears when it expires or is completed.
type LoginSession struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Email     string       `json:"email"`
	FullName  string       `json:"full_name"`
	State     SessionState `json:"state"`
	CodeHash  string       `json:"code_hash,omitempty"`
	Attempts  int          `json:"attempts"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (s LoginSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
