package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/response"
	"github.com/go-chi/jwtauth/v5"
)

// RequirePermission checks if user has specific permission
func RequirePermission(permission user.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := ActorFromContext(r.Context())
			if err != nil {
				response.Forbidden(w, fmt.Sprintf("Insufficient permissions: required '%s'", permission))
				return
			}

			if !actor.Can(permission) {
				response.Forbidden(w, fmt.Sprintf("Insufficient permissions: required '%s', but user role is '%s'", permission, actor.Role))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ActorFromContext reads the caller's identity from verified JWT claims.
func ActorFromContext(ctx context.Context) (absence.Actor, error) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return absence.Actor{}, auth.ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return absence.Actor{}, auth.ErrInvalidToken
	}

	roleStr, ok := claims["role"].(string)
	if !ok {
		return absence.Actor{}, auth.ErrInvalidToken
	}
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return absence.Actor{}, err
	}

	return absence.Actor{UserID: userID, Role: role}, nil
}
