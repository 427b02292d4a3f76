package auth_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/auth"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	t.Setenv("AGENTDECK_DATA_DIR", t.TempDir())
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := auth.NewTokenService("access-secret", "refresh-secret", "agentdeck")

	access, refresh, err := svc.IssueTokens("u1", "u1@example.com")
	require.NoError(t, err)
	require.NotEqual(t, access, refresh)

	claims, err := svc.ValidateAccess(access)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "u1@example.com", claims.Email)

	// tokens signed with the other secret don't cross over
	_, err = svc.ValidateAccess(refresh)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	fresh, err := svc.Refresh(refresh)
	require.NoError(t, err)
	_, err = svc.ValidateAccess(fresh)
	require.NoError(t, err)
}

func TestTokenService_RejectsGarbage(t *testing.T) {
	svc := auth.NewTokenService("s1", "s2", "agentdeck")
	_, err := svc.ValidateAccess("not.a.token")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	other := auth.NewTokenService("different", "s2", "agentdeck")
	access, _, err := other.IssueTokens("u1", "")
	require.NoError(t, err)
	_, err = svc.ValidateAccess(access)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestProviderChain_JWTThenRuntime(t *testing.T) {
	tokens := auth.NewTokenService("access-secret", "refresh-secret", "agentdeck")
	chain := auth.NewProviderChain()
	chain.Register(auth.NewJWTProvider(tokens))
	chain.Register(auth.NewRuntimeProvider("svc-secret"))

	access, _, err := tokens.IssueTokens("u1", "u1@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	id, err := chain.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "u1", id.UserID)

	svcToken, err := auth.SignRuntimeToken([]byte("svc-secret"), "runtime", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest("POST", "/api/v1/tasks", nil)
	req.Header.Set("X-Service-Token", svcToken)
	id, err = chain.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "svc:runtime", id.UserID)

	// no credentials at all: anonymous, not an error
	req = httptest.NewRequest("GET", "/api/v1/tasks", nil)
	id, err = chain.Authenticate(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, id)

	// bad credentials reject immediately
	req = httptest.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	_, err = chain.Authenticate(context.Background(), req)
	require.Error(t, err)
}

func TestRuntimeProvider_RejectsTamperedToken(t *testing.T) {
	p := auth.NewRuntimeProvider("svc-secret")

	token, err := auth.SignRuntimeToken([]byte("other-secret"), "runtime", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("X-Service-Token", token)
	_, err = p.Authenticate(context.Background(), req)
	require.Error(t, err)

	expired, err := auth.SignRuntimeToken([]byte("svc-secret"), "runtime", -time.Minute)
	require.NoError(t, err)
	req.Header.Set("X-Service-Token", expired)
	_, err = p.Authenticate(context.Background(), req)
	require.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("hunter2hunter2")
	require.NoError(t, err)
	require.NoError(t, auth.CheckPassword(hash, "hunter2hunter2"))
	require.ErrorIs(t, auth.CheckPassword(hash, "wrong"), auth.ErrWrongPassword)

	_, err = auth.HashPassword("short")
	require.Error(t, err)
}

func TestOTP_IssueVerifyConsume(t *testing.T) {
	st := newTestStore(t)
	svc := auth.NewOTPService(st)

	otp, err := svc.Issue(context.Background(), "u1", models.OTPVerifyEmail)
	require.NoError(t, err)
	require.Len(t, otp.Code, 6)

	require.ErrorIs(t, svc.Verify(context.Background(), "u1", models.OTPVerifyEmail, "000000x"), auth.ErrInvalidOTP)
	require.NoError(t, svc.Verify(context.Background(), "u1", models.OTPVerifyEmail, otp.Code))

	// consumed: the same code doesn't verify twice
	require.ErrorIs(t, svc.Verify(context.Background(), "u1", models.OTPVerifyEmail, otp.Code), auth.ErrInvalidOTP)
}

func TestOTP_ReissueReplaces(t *testing.T) {
	st := newTestStore(t)
	svc := auth.NewOTPService(st)

	first, err := svc.Issue(context.Background(), "u1", models.OTPResetPassword)
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), "u1", models.OTPResetPassword)
	require.NoError(t, err)

	if first.Code != second.Code {
		require.ErrorIs(t, svc.Verify(context.Background(), "u1", models.OTPResetPassword, first.Code), auth.ErrInvalidOTP)
	}
	require.NoError(t, svc.Verify(context.Background(), "u1", models.OTPResetPassword, second.Code))
}
