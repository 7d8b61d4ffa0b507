package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/response"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/jwt"
)

type AuthHandler interface {
	Login(w http.ResponseWriter, r *http.Request)
	VerifyLoginCode(w http.ResponseWriter, r *http.Request)
	ListPendingSessions(w http.ResponseWriter, r *http.Request)
	IssueLoginCode(w http.ResponseWriter, r *http.Request)
	RefreshToken(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
}

type AuthHandlerImpl struct {
	jwtService  jwt.Service
	authService auth.AuthService
}

func NewAuthHandler(jwtService jwt.Service, authService auth.AuthService) AuthHandler {
	return &AuthHandlerImpl{
		jwtService:  jwtService,
		authService: authService,
	}
}

// Login implements AuthHandler.
func (a *AuthHandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq auth.LoginRequest

	// 1. Decode JSON
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		slog.Error("Login decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	// Validate DTO
	if err := loginReq.Validate(); err != nil {
		slog.Error("Login validate error", "error", err)
		response.HandleError(w, err)
		return
	}

	// Call service
	loginResponse, err := a.authService.Login(r.Context(), loginReq)
	if err != nil {
		slog.Error("Login service error", "error", err)
		response.HandleError(w, err)
		return
	}

	if loginResponse.LoginSession != nil {
		slog.Info("Login awaiting code", "session_id", loginResponse.LoginSession.SessionID)
		response.Accepted(w, "Login code required, ask an administrator", loginResponse)
		return
	}

	// Success response
	a.setRefreshCookie(w, loginResponse.Tokens)
	slog.Info("User logged in successfully")
	response.Created(w, "User logged in successfully", loginResponse)
}

// VerifyLoginCode implements AuthHandler.
func (a *AuthHandlerImpl) VerifyLoginCode(w http.ResponseWriter, r *http.Request) {
	var verifyReq auth.VerifyLoginCodeRequest

	if err := json.NewDecoder(r.Body).Decode(&verifyReq); err != nil {
		slog.Error("VerifyLoginCode decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if err := verifyReq.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	tokenResponse, err := a.authService.VerifyLoginCode(r.Context(), verifyReq)
	if err != nil {
		slog.Warn("VerifyLoginCode failed", "session_id", verifyReq.SessionID, "error", err)
		response.HandleError(w, err)
		return
	}

	a.setRefreshCookie(w, &tokenResponse)
	slog.Info("User logged in with login code")
	response.Created(w, "User logged in successfully", tokenResponse)
}

// ListPendingSessions implements AuthHandler.
func (a *AuthHandlerImpl) ListPendingSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.authService.ListPendingSessions(r.Context())
	if err != nil {
		slog.Error("ListPendingSessions service error", "error", err)
		response.HandleError(w, err)
		return
	}
	response.Success(w, sessions)
}

// IssueLoginCode implements AuthHandler.
func (a *AuthHandlerImpl) IssueLoginCode(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	var issueReq auth.IssueLoginCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&issueReq); err != nil {
		slog.Error("IssueLoginCode decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if err := issueReq.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	issued, err := a.authService.IssueLoginCode(r.Context(), actor.UserID, issueReq)
	if err != nil {
		slog.Error("IssueLoginCode service error", "error", err)
		response.HandleError(w, err)
		return
	}

	slog.Info("Login code issued", "session_id", issued.SessionID, "admin_id", actor.UserID)
	response.Created(w, "Login code issued", issued)
}

// RefreshToken implements AuthHandler.
func (a *AuthHandlerImpl) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var refreshTokenReq auth.RefreshTokenRequest

	// Try to get refresh token from cookie first (preferred method)
	refreshTokenCookie, err := r.Cookie("refresh_token")
	if err == nil && refreshTokenCookie.Value != "" {
		refreshTokenReq.RefreshToken = refreshTokenCookie.Value
	} else {
		// Fallback: try to get from JSON body
		if err := json.NewDecoder(r.Body).Decode(&refreshTokenReq); err != nil {
			slog.Error("Refresh Token decode error", "error", err)
			response.BadRequest(w, "Invalid request format", nil)
			return
		}
	}

	// Validate DTO
	if err := refreshTokenReq.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	// Call service
	tokenResponse, err := a.authService.RefreshToken(r.Context(), refreshTokenReq)
	if err != nil {
		slog.Error("Refresh Token service error", "error", err)
		response.HandleError(w, err)
		return
	}

	// Success response
	slog.Info("Token refreshed successfully")
	response.Created(w, "Token refreshed successfully", tokenResponse)
}

// Logout implements AuthHandler.
func (a *AuthHandlerImpl) Logout(w http.ResponseWriter, r *http.Request) {
	refreshTokenCookieReq, err := r.Cookie("refresh_token")
	if err != nil || refreshTokenCookieReq.Value == "" {
		response.HandleError(w, auth.ErrInvalidToken)
		return
	}

	if err := a.authService.Logout(r.Context(), refreshTokenCookieReq.Value); err != nil {
		response.HandleError(w, err)
		return
	}

	// Clear the refresh token cookie
	clearedCookie := a.jwtService.RefreshTokenCookie("", 0)
	clearedCookie.Expires = time.Unix(0, 0)
	clearedCookie.MaxAge = -1
	http.SetCookie(w, clearedCookie)
	response.SuccessWithMessage(w, "User logged out successfully", nil)
}

func (a *AuthHandlerImpl) setRefreshCookie(w http.ResponseWriter, tokens *auth.TokenResponse) {
	if tokens == nil {
		return
	}
	http.SetCookie(w, a.jwtService.RefreshTokenCookie(tokens.RefreshToken, tokens.RefreshTokenExpiresIn))
}
