package absence

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation             = errors.New("absence request is invalid")
	ErrQuotaExceeded          = errors.New("quota exceeded")
	ErrAlreadyDecided         = errors.New("absence request already decided")
	ErrNotFound               = errors.New("absence request not found")
	ErrForbidden              = errors.New("not allowed to act on this absence request")
	ErrCertificateUnavailable = errors.New("certificate is only available for approved requests")
)

// ValidationCode is the subkind of a validation failure.
type ValidationCode string

const (
	CodeMissingField        ValidationCode = "missing_field"
	CodeInvalidRange        ValidationCode = "invalid_range"
	CodeDurationOutOfBounds ValidationCode = "duration_out_of_bounds"
	CodeInsufficientQuota   ValidationCode = "insufficient_quota"
	CodeAttachmentRejected  ValidationCode = "attachment_rejected"
)

// Per-code sentinels for errors.Is.
var (
	ErrMissingField        = &ValidationError{Code: CodeMissingField}
	ErrInvalidRange        = &ValidationError{Code: CodeInvalidRange}
	ErrDurationOutOfBounds = &ValidationError{Code: CodeDurationOutOfBounds}
	ErrInsufficientQuota   = &ValidationError{Code: CodeInsufficientQuota}
	ErrAttachmentRejected  = &ValidationError{Code: CodeAttachmentRejected}
)

type ValidationError struct {
	Code    ValidationCode
	Field   string
	Message string
	// Remaining is set for insufficient_quota.
	Remaining *decimal.Decimal
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, msg)
	}
	return msg
}

// Is matches another ValidationError by code, so callers can test against
// the per-code sentinels.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(code ValidationCode, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

func MissingField(field string) *ValidationError {
	return newValidationError(CodeMissingField, field, "is required")
}

func InvalidRange(field, message string) *ValidationError {
	return newValidationError(CodeInvalidRange, field, message)
}

func DurationOutOfBounds(message string) *ValidationError {
	return newValidationError(CodeDurationOutOfBounds, "period", message)
}

func InsufficientQuota(periodKey string, requested, remaining decimal.Decimal) *ValidationError {
	e := newValidationError(CodeInsufficientQuota, "requested_units",
		fmt.Sprintf("requested %s units but only %s remain for %s", requested, remaining, periodKey))
	e.Remaining = &remaining
	return e
}

func AttachmentRejected(field, message string) *ValidationError {
	return newValidationError(CodeAttachmentRejected, field, message)
}

// QuotaExceededError is returned when the atomic re-check at submit time
// finds the ledger no longer has room.
type QuotaExceededError struct {
	PeriodKey string
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: requested %s, remaining %s", e.PeriodKey, e.Requested, e.Remaining)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }
