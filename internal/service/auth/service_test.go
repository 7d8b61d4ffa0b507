package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/training-center-backend-go/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessExp  = "1h"
	testRefreshExp = "24h"
	testSecret     = "test-secret-key-for-jwt"
	testPassword   = "password123"
)

type authFixture struct {
	svc      *AuthServiceImpl
	sessions *memory.LoginSessionStore
	now      time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	hashed := string(hash)

	users := memory.NewUserStore(
		user.User{ID: "admin-1", Email: "admin@test", FullName: "Admin", PasswordHash: &hashed, Role: user.Admin, Validated: true},
		user.User{ID: "trainer-1", Email: "trainer@test", FullName: "Trainer", PasswordHash: &hashed, Role: user.Formateur, Validated: true},
		user.User{ID: "trainee-1", Email: "trainee@test", FullName: "Trainee", PasswordHash: &hashed, Role: user.Apprenant, Validated: true},
		user.User{ID: "trainee-2", Email: "new@test", FullName: "Newcomer", PasswordHash: &hashed, Role: user.Apprenant},
	)

	jwtService, err := jwt.NewJWTService(testSecret, testAccessExp, testRefreshExp)
	require.NoError(t, err)

	f := &authFixture{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.sessions = memory.NewLoginSessionStore().WithClock(func() time.Time { return f.now })
	f.svc = NewAuthService(users, f.sessions, jwtService, nil, Config{SessionTTL: 15 * time.Minute, MaxCodeAttempts: 3})
	f.svc.now = func() time.Time { return f.now }
	f.svc.newCode = func() (string, error) { return "123456", nil }
	return f
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		password    string
		wantErr     error
		wantTokens  bool
		wantSession bool
	}{
		{name: "admin gets tokens", email: "admin@test", password: testPassword, wantTokens: true},
		{name: "apprenant gets tokens", email: "trainee@test", password: testPassword, wantTokens: true},
		{name: "formateur gets a pending session", email: "trainer@test", password: testPassword, wantSession: true},
		{name: "wrong password", email: "admin@test", password: "nope", wantErr: auth.ErrInvalidCredentials},
		{name: "unknown email", email: "ghost@test", password: testPassword, wantErr: auth.ErrInvalidCredentials},
		{name: "account not validated", email: "new@test", password: testPassword, wantErr: user.ErrAccountNotValidated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			resp, err := f.svc.Login(context.Background(), auth.LoginRequest{Email: tt.email, Password: tt.password})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTokens, resp.Tokens != nil)
			assert.Equal(t, tt.wantSession, resp.LoginSession != nil)
			if tt.wantSession {
				assert.Equal(t, auth.SessionAwaitingCode, resp.LoginSession.State)
				assert.Equal(t, f.now.Add(15*time.Minute), resp.LoginSession.ExpiresAt)
			}
		})
	}
}

func TestFormateurTwoStepLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, auth.LoginRequest{Email: "trainer@test", Password: testPassword})
	require.NoError(t, err)
	sessionID := resp.LoginSession.SessionID

	_, err = f.svc.VerifyLoginCode(ctx, auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: "123456"})
	assert.ErrorIs(t, err, auth.ErrCodeNotIssued)

	pending, err := f.svc.ListPendingSessions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "trainer-1", pending[0].UserID)

	issued, err := f.svc.IssueLoginCode(ctx, "admin-1", auth.IssueLoginCodeRequest{SessionID: sessionID})
	require.NoError(t, err)
	assert.Equal(t, "123456", issued.Code)

	stored, err := f.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.NotEqual(t, "123456", stored.CodeHash)
	assert.Equal(t, auth.SessionCodeIssued, stored.State)

	tokens, err := f.svc.VerifyLoginCode(ctx, auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: "123456"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	// Single use.
	_, err = f.svc.VerifyLoginCode(ctx, auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: "123456"})
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestVerifyLoginCode_TooManyAttempts(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, auth.LoginRequest{Email: "trainer@test", Password: testPassword})
	require.NoError(t, err)
	sessionID := resp.LoginSession.SessionID
	_, err = f.svc.IssueLoginCode(ctx, "admin-1", auth.IssueLoginCodeRequest{SessionID: sessionID})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.svc.VerifyLoginCode(ctx, auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: "000000"})
		assert.ErrorIs(t, err, auth.ErrInvalidCode)
	}
	_, err = f.svc.VerifyLoginCode(ctx, auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: "000000"})
	assert.ErrorIs(t, err, auth.ErrTooManyAttempts)

	_, err = f.svc.VerifyLoginCode(ctx, auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: "123456"})
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func issuedSession(t *testing.T, f *authFixture) string {
	t.Helper()
	ctx := context.Background()
	resp, err := f.svc.Login(ctx, auth.LoginRequest{Email: "trainer@test", Password: testPassword})
	require.NoError(t, err)
	_, err = f.svc.IssueLoginCode(ctx, "admin-1", auth.IssueLoginCodeRequest{SessionID: resp.LoginSession.SessionID})
	require.NoError(t, err)
	return resp.LoginSession.SessionID
}

// verifyConcurrently fires n verifications at once and tallies the outcomes.
func verifyConcurrently(f *authFixture, sessionID, code string, n int) (successes int, failures map[error]int) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	failures = make(map[error]int)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyLoginCode(context.Background(), auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: code})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			for _, known := range []error{auth.ErrInvalidCode, auth.ErrTooManyAttempts, auth.ErrSessionNotFound} {
				if errors.Is(err, known) {
					failures[known]++
					return
				}
			}
			failures[err]++
		}()
	}
	wg.Wait()
	return successes, failures
}

func TestVerifyLoginCode_ConcurrentWrongCodesRespectLimit(t *testing.T) {
	f := newAuthFixture(t)
	sessionID := issuedSession(t, f)

	successes, failures := verifyConcurrently(f, sessionID, "000000", 40)
	assert.Zero(t, successes)
	assert.Equal(t, 2, failures[auth.ErrInvalidCode], "only the attempts under the limit are reported as plain misses")
	assert.Equal(t, 40, failures[auth.ErrInvalidCode]+failures[auth.ErrTooManyAttempts]+failures[auth.ErrSessionNotFound])

	_, err := f.sessions.Get(context.Background(), sessionID)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestVerifyLoginCode_ConcurrentCorrectCodesIssueOnce(t *testing.T) {
	f := newAuthFixture(t)
	sessionID := issuedSession(t, f)

	successes, failures := verifyConcurrently(f, sessionID, "123456", 10)
	assert.Equal(t, 1, successes)
	assert.Equal(t, 9, failures[auth.ErrTooManyAttempts]+failures[auth.ErrSessionNotFound])
}

func TestVerifyLoginCode_CorrectCodeOnLastAttempt(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	sessionID := issuedSession(t, f)

	for i := 0; i < 2; i++ {
		_, err := f.svc.VerifyLoginCode(ctx, auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: "000000"})
		assert.ErrorIs(t, err, auth.ErrInvalidCode)
	}
	stored, err := f.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)

	tokens, err := f.svc.VerifyLoginCode(ctx, auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: "123456"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
}

func TestIssueLoginCode_ResetsAttempts(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	sessionID := issuedSession(t, f)

	_, err := f.svc.VerifyLoginCode(ctx, auth.VerifyLoginCodeRequest{SessionID: sessionID, Code: "000000"})
	assert.ErrorIs(t, err, auth.ErrInvalidCode)
	_, err = f.svc.IssueLoginCode(ctx, "admin-1", auth.IssueLoginCodeRequest{SessionID: sessionID})
	require.NoError(t, err)

	stored, err := f.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Zero(t, stored.Attempts)
}

func TestLoginSessionExpires(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, auth.LoginRequest{Email: "trainer@test", Password: testPassword})
	require.NoError(t, err)

	f.now = f.now.Add(16 * time.Minute)

	_, err = f.svc.IssueLoginCode(ctx, "admin-1", auth.IssueLoginCodeRequest{SessionID: resp.LoginSession.SessionID})
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	removed, err := f.svc.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRefreshAndLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, auth.LoginRequest{Email: "trainee@test", Password: testPassword})
	require.NoError(t, err)
	refresh := resp.Tokens.RefreshToken

	access, err := f.svc.RefreshToken(ctx, auth.RefreshTokenRequest{RefreshToken: refresh})
	require.NoError(t, err)
	assert.NotEmpty(t, access.AccessToken)

	_, err = f.svc.RefreshToken(ctx, auth.RefreshTokenRequest{RefreshToken: resp.Tokens.AccessToken})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	require.NoError(t, f.svc.Logout(ctx, refresh))
	_, err = f.svc.RefreshToken(ctx, auth.RefreshTokenRequest{RefreshToken: refresh})
	assert.ErrorIs(t, err, auth.ErrRefreshTokenRevoked)
}

func TestGenerateLoginCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateLoginCode()
		require.NoError(t, err)
		assert.Len(t, code, loginCodeDigits)
	}
}
