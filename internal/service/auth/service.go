package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/email"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/jwt"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const loginCodeDigits = 6

type Config struct {
	SessionTTL      time.Duration
	MaxCodeAttempts int
}

type AuthServiceImpl struct {
	users    user.UserRepository
	sessions auth.SessionStore
	jwt      jwt.Service
	email    email.EmailService
	cfg      Config
	now      func() time.Time
	newCode  func() (string, error)
}

// NewAuthService builds the service. emailService may be nil, in which case
// issued codes are only returned to the admin.
func NewAuthService(users user.UserRepository, sessions auth.SessionStore, jwtService jwt.Service, emailService email.EmailService, cfg Config) *AuthServiceImpl {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = 5
	}
	return &AuthServiceImpl{
		users:    users,
		sessions: sessions,
		jwt:      jwtService,
		email:    emailService,
		cfg:      cfg,
		now:      time.Now,
		newCode:  generateLoginCode,
	}
}

// generateLoginCode returns a uniformly random zero-padded 6-digit code.
func generateLoginCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", loginCodeDigits, n.Int64()), nil
}

// Login implements auth.AuthService.
func (a *AuthServiceImpl) Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResponse, error) {
	userData, err := a.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return auth.LoginResponse{}, auth.ErrInvalidCredentials
		}
		return auth.LoginResponse{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	if userData.PasswordHash == nil {
		return auth.LoginResponse{}, auth.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*userData.PasswordHash), []byte(req.Password)); err != nil {
		return auth.LoginResponse{}, auth.ErrInvalidCredentials
	}
	if !userData.Validated {
		return auth.LoginResponse{}, user.ErrAccountNotValidated
	}

	if !userData.Role.RequiresLoginCode() {
		tokens, err := a.issueTokens(userData)
		if err != nil {
			return auth.LoginResponse{}, err
		}
		profile := user.NewUserResponse(userData)
		return auth.LoginResponse{Tokens: &tokens, User: &profile}, nil
	}

	now := a.now()
	session := auth.LoginSession{
		ID:        uuid.New().String(),
		UserID:    userData.ID,
		Email:     userData.Email,
		FullName:  userData.FullName,
		State:     auth.SessionAwaitingCode,
		CreatedAt: now,
		ExpiresAt: now.Add(a.cfg.SessionTTL),
	}
	if err := a.sessions.Save(ctx, session); err != nil {
		return auth.LoginResponse{}, fmt.Errorf("failed to create login session: %w", err)
	}

	slog.Info("Login session awaiting code", "session_id", session.ID, "user_id", userData.ID)
	return auth.LoginResponse{LoginSession: &auth.LoginSessionResponse{
		SessionID: session.ID,
		State:     session.State,
		ExpiresAt: session.ExpiresAt,
	}}, nil
}

// IssueLoginCode implements auth.AuthService. Issuing again replaces the
// previous code and resets the attempt counter.
func (a *AuthServiceImpl) IssueLoginCode(ctx context.Context, adminID string, req auth.IssueLoginCodeRequest) (auth.IssuedCodeResponse, error) {
	session, err := a.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return auth.IssuedCodeResponse{}, err
	}

	code, err := a.newCode()
	if err != nil {
		return auth.IssuedCodeResponse{}, fmt.Errorf("failed to generate login code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return auth.IssuedCodeResponse{}, fmt.Errorf("failed to hash login code: %w", err)
	}

	session.CodeHash = string(hash)
	session.State = auth.SessionCodeIssued
	session.Attempts = 0
	if err := a.sessions.Save(ctx, session); err != nil {
		return auth.IssuedCodeResponse{}, fmt.Errorf("failed to store login code: %w", err)
	}

	slog.Info("Login code issued", "session_id", session.ID, "user_id", session.UserID, "issued_by", adminID)

	if a.email != nil {
		if err := a.email.SendLoginCode(session.Email, session.FullName, code, session.ExpiresAt.Format("02/01/2006 15:04")); err != nil {
			slog.Error("Failed to email login code", "session_id", session.ID, "error", err)
		}
	}

	return auth.IssuedCodeResponse{
		SessionID: session.ID,
		Code:      code,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// VerifyLoginCode implements auth.AuthService. A session is single use and
// is destroyed after MaxCodeAttempts wrong codes. Each attempt is counted
// before the code is compared, so concurrent guesses never get more than
// MaxCodeAttempts comparisons.
func (a *AuthServiceImpl) VerifyLoginCode(ctx context.Context, req auth.VerifyLoginCodeRequest) (auth.TokenResponse, error) {
	session, err := a.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return auth.TokenResponse{}, err
	}
	if session.State != auth.SessionCodeIssued || session.CodeHash == "" {
		return auth.TokenResponse{}, auth.ErrCodeNotIssued
	}

	attempt, err := a.sessions.IncrementAttempts(ctx, session)
	if err != nil {
		return auth.TokenResponse{}, err
	}
	if attempt > a.cfg.MaxCodeAttempts {
		return auth.TokenResponse{}, auth.ErrTooManyAttempts
	}

	if err := bcrypt.CompareHashAndPassword([]byte(session.CodeHash), []byte(req.Code)); err != nil {
		if attempt == a.cfg.MaxCodeAttempts {
			if err := a.sessions.Delete(ctx, session.ID); err != nil {
				return auth.TokenResponse{}, fmt.Errorf("failed to destroy login session: %w", err)
			}
			slog.Warn("Login session destroyed after too many attempts", "session_id", session.ID, "user_id", session.UserID)
			return auth.TokenResponse{}, auth.ErrTooManyAttempts
		}
		return auth.TokenResponse{}, auth.ErrInvalidCode
	}

	if err := a.sessions.Consume(ctx, session.ID); err != nil {
		return auth.TokenResponse{}, err
	}

	userData, err := a.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return auth.TokenResponse{}, auth.ErrUserNotFound
		}
		return auth.TokenResponse{}, err
	}
	return a.issueTokens(userData)
}

// ListPendingSessions implements auth.AuthService.
func (a *AuthServiceImpl) ListPendingSessions(ctx context.Context) ([]auth.PendingSessionResponse, error) {
	sessions, err := a.sessions.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]auth.PendingSessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, auth.NewPendingSessionResponse(s))
	}
	return out, nil
}

// RefreshToken implements auth.AuthService.
func (a *AuthServiceImpl) RefreshToken(ctx context.Context, req auth.RefreshTokenRequest) (auth.AccessTokenResponse, error) {
	if a.jwt.IsTokenRevoked(req.RefreshToken) {
		return auth.AccessTokenResponse{}, auth.ErrRefreshTokenRevoked
	}
	userID, err := a.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		return auth.AccessTokenResponse{}, auth.ErrInvalidToken
	}

	userData, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return auth.AccessTokenResponse{}, auth.ErrUserNotFound
	}

	var resp auth.AccessTokenResponse
	resp.AccessToken, resp.AccessTokenExpiresIn, err = a.jwt.GenerateAccessToken(userData.ID, userData.Email, userData.Role)
	if err != nil {
		return auth.AccessTokenResponse{}, fmt.Errorf("failed to generate access token: %w", err)
	}
	return resp, nil
}

// Logout implements auth.AuthService.
func (a *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	token, err := jwtauth.VerifyToken(a.jwt.JWTAuth(), refreshToken)
	if err != nil {
		return auth.ErrInvalidToken
	}
	a.jwt.RevokeToken(refreshToken, token.Expiration().Unix())
	return nil
}

// CleanupExpiredSessions implements auth.AuthService.
func (a *AuthServiceImpl) CleanupExpiredSessions(ctx context.Context) (int, error) {
	return a.sessions.DeleteExpired(ctx, a.now())
}

func (a *AuthServiceImpl) issueTokens(u user.User) (auth.TokenResponse, error) {
	var tokens auth.TokenResponse
	var err error

	tokens.AccessToken, tokens.AccessTokenExpiresIn, err = a.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return auth.TokenResponse{}, fmt.Errorf("failed to create access token: %w", err)
	}
	tokens.RefreshToken, tokens.RefreshTokenExpiresIn, err = a.jwt.GenerateRefreshToken(u.ID)
	if err != nil {
		return auth.TokenResponse{}, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return tokens, nil
}
