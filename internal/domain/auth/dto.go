package auth

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/validator"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=255"`
}

func (r *LoginRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return validator.Struct(r)
}

type VerifyLoginCodeRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

func (r *VerifyLoginCodeRequest) Validate() error {
	r.Code = strings.TrimSpace(r.Code)
	return validator.Struct(r)
}

type IssueLoginCodeRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
}

func (r *IssueLoginCodeRequest) Validate() error {
	return validator.Struct(r)
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r *RefreshTokenRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.RefreshToken) {
		errs = append(errs, validator.ValidationError{
			Field:   "refresh_token",
			Message: "refresh_token is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type TokenResponse struct {
	AccessToken           string `json:"access_token"`
	AccessTokenExpiresIn  int64  `json:"access_token_expires_in"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

type AccessTokenResponse struct {
	AccessToken          string `json:"access_token"`
	AccessTokenExpiresIn int64  `json:"access_token_expires_in"`
}

// LoginResponse carries either tokens or a pending session.
type LoginResponse struct {
	Tokens       *TokenResponse        `json:"tokens,omitempty"`
	User         *user.UserResponse    `json:"user,omitempty"`
	LoginSession *LoginSessionResponse `json:"login_session,omitempty"`
}

type LoginSessionResponse struct {
	SessionID string       `json:"session_id"`
	State     SessionState `json:"state"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type PendingSessionResponse struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
	Email     string       `json:"email"`
	FullName  string       `json:"full_name"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func NewPendingSessionResponse(s LoginSession) PendingSessionResponse {
	return PendingSessionResponse{
		SessionID: s.ID,
		UserID:    s.UserID,
		Email:     s.Email,
		FullName:  s.FullName,
		State:     s.State,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

// IssuedCodeResponse is shown once to the issuing admin.
type IssuedCodeResponse struct {
	SessionID string    `json:"session_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
