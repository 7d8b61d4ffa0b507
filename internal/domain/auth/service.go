package auth

import (
	"context"
)

type AuthService interface {
	// Login checks the password. Roles that need a login code get a pending
	// session instead of tokens.
	Login(ctx context.Context, req LoginRequest) (LoginResponse, error)
	VerifyLoginCode(ctx context.Context, req VerifyLoginCodeRequest) (TokenResponse, error)
	IssueLoginCode(ctx context.Context, adminID string, req IssueLoginCodeRequest) (IssuedCodeResponse, error)
	ListPendingSessions(ctx context.Context) ([]PendingSessionResponse, error)
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (AccessTokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	CleanupExpiredSessions(ctx context.Context) (int, error)
}
