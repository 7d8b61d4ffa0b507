package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func contextWithClaims(t *testing.T, claims map[string]interface{}) context.Context {
	t.Helper()
	ja := jwtauth.New("HS256", []byte("middleware-test-secret"), nil)
	token, _, err := ja.Encode(claims)
	require.NoError(t, err)
	return jwtauth.NewContext(context.Background(), token, nil)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestActorFromContext(t *testing.T) {
	actor, err := ActorFromContext(contextWithClaims(t, map[string]interface{}{"user_id": "u-1", "role": "formateur"}))
	require.NoError(t, err)
	assert.Equal(t, "u-1", actor.UserID)
	assert.Equal(t, user.Formateur, actor.Role)

	_, err = ActorFromContext(contextWithClaims(t, map[string]interface{}{"role": "admin"}))
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = ActorFromContext(contextWithClaims(t, map[string]interface{}{"user_id": "u-1", "role": "intern"}))
	assert.ErrorIs(t, err, user.ErrUnknownRole)

	_, err = ActorFromContext(context.Background())
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name string
		role string
		want int
	}{
		{name: "admin decides", role: "admin", want: http.StatusNoContent},
		{name: "apprenant cannot decide", role: "apprenant", want: http.StatusForbidden},
		{name: "formateur cannot decide", role: "formateur", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := contextWithClaims(t, map[string]interface{}{"user_id": "u-1", "role": tt.role})
			req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
			w := httptest.NewRecorder()

			RequirePermission(user.PermissionAbsenceDecide)(okHandler()).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRateLimitByUser(t *testing.T) {
	limiter := NewUserRateLimiter(rate.Limit(0.001), 1)
	handler := RateLimitByUser(limiter)(okHandler())

	send := func(userID string) int {
		ctx := contextWithClaims(t, map[string]interface{}{"user_id": userID, "role": "apprenant"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx))
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	assert.Equal(t, http.StatusNoContent, send("bob"), "buckets are per user")
}

func TestUserRateLimiter_Prune(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewUserRateLimiter(rate.Limit(1), 1)
	limiter.now = func() time.Time { return now }

	limiter.GetLimiter("alice")
	now = now.Add(5 * time.Minute)
	limiter.GetLimiter("bob")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, limiter.Prune())
	assert.Len(t, limiter.limiters, 1)
	assert.Contains(t, limiter.limiters, "bob")
}
