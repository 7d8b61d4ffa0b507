package auth

import "errors"

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrRefreshTokenRevoked = errors.New("refresh token has been revoked")
	ErrUserNotFound        = errors.New("user not found")

	ErrSessionNotFound = errors.New("login session not found or expired")
	ErrCodeNotIssued   = errors.New("no login code has been issued for this session yet")
	ErrInvalidCode     = errors.New("invalid login code")
	ErrTooManyAttempts = errors.New("too many invalid login codes, please log in again")
)
