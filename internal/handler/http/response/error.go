package response

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/notification"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/storage"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	// Absence engine errors carry their own code
	var absenceErr *absence.ValidationError
	if errors.As(err, &absenceErr) {
		details := map[string]string{}
		if absenceErr.Field != "" {
			details["field"] = absenceErr.Field
		}
		if absenceErr.Remaining != nil {
			details["remaining"] = absenceErr.Remaining.String()
		}
		ErrorWithCode(w, http.StatusUnprocessableEntity, strings.ToUpper(string(absenceErr.Code)), absenceErr.Error(), details)
		return
	}
	var quotaErr *absence.QuotaExceededError
	if errors.As(err, &quotaErr) {
		ErrorWithCode(w, http.StatusConflict, "QUOTA_EXCEEDED", quotaErr.Error(), map[string]string{
			"period":    quotaErr.PeriodKey,
			"remaining": quotaErr.Remaining.String(),
		})
		return
	}

	switch {
	// Absence domain errors
	case errors.Is(err, absence.ErrAlreadyDecided):
		ErrorWithCode(w, http.StatusConflict, "ALREADY_DECIDED", "Absence request already decided", nil)
	case errors.Is(err, absence.ErrNotFound):
		NotFound(w, "Absence request not found")
	case errors.Is(err, absence.ErrForbidden):
		Forbidden(w, "Not allowed to act on this absence request")
	case errors.Is(err, absence.ErrCertificateUnavailable):
		ErrorWithCode(w, http.StatusConflict, "CERTIFICATE_UNAVAILABLE", err.Error(), nil)

	// Auth domain errors
	case errors.Is(err, auth.ErrInvalidCredentials):
		Unauthorized(w, err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(w, "Invalid token")
	case errors.Is(err, auth.ErrRefreshTokenRevoked):
		Unauthorized(w, "Refresh token revoked")
	case errors.Is(err, auth.ErrInvalidCode):
		Unauthorized(w, "Invalid login code")
	case errors.Is(err, auth.ErrTooManyAttempts):
		ErrorWithCode(w, http.StatusUnauthorized, "TOO_MANY_ATTEMPTS", "Too many invalid codes, please log in again", nil)
	case errors.Is(err, auth.ErrCodeNotIssued):
		ErrorWithCode(w, http.StatusConflict, "CODE_NOT_ISSUED", "No login code has been issued yet", nil)
	case errors.Is(err, auth.ErrSessionNotFound):
		NotFound(w, "Login session not found or expired")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, user.ErrUserNotFound):
		NotFound(w, "User not found")

	// User domain errors
	case errors.Is(err, user.ErrAccountNotValidated):
		Forbidden(w, "Account not validated")
	case errors.Is(err, user.ErrInsufficientPermissions):
		Forbidden(w, "Insufficient permissions")
	case errors.Is(err, user.ErrUnknownRole):
		Forbidden(w, "Unknown role")
	case errors.Is(err, user.ErrEmailAlreadyExists):
		Conflict(w, "Email already registered")

	// Notification domain errors
	case errors.Is(err, notification.ErrNotificationNotFound):
		NotFound(w, "Notification not found")
	case errors.Is(err, notification.ErrInvalidNotificationType):
		BadRequest(w, "Invalid notification type", nil)

	// Storage errors
	case errors.Is(err, storage.ErrFileTooLarge):
		ErrorWithCode(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), nil)
	case errors.Is(err, storage.ErrFileNotFound):
		NotFound(w, "Attachment not found")

	// Default
	default:
		slog.Error("unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}
