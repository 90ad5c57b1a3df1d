package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-api/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newService(t *testing.T, password string) *auth.Service {
	t.Helper()
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	require.NoError(t, err)
	svc, err := auth.NewService(auth.Config{
		Secret:            testSecret,
		AdminPasswordHash: hash,
		TokenTTL:          time.Hour,
	})
	require.NoError(t, err)
	return svc
}

func TestLoginAndParseRoundTrip(t *testing.T) {
	svc := newService(t, "correct horse")

	result, err := svc.Login("correct horse")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	require.True(t, result.ExpiresAt.After(time.Now()))

	subject, err := svc.ParseToken(result.Token)
	require.NoError(t, err)
	require.Equal(t, "admin", subject)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := newService(t, "correct horse")

	_, err := svc.Login("battery staple")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	svc := newService(t, "correct horse")
	past := time.Now().Add(-3 * time.Hour)
	svc.WithNow(func() time.Time { return past })

	result, err := svc.Login("correct horse")
	require.NoError(t, err)

	svc.WithNow(time.Now)
	_, err = svc.ParseToken(result.Token)
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	svc := newService(t, "correct horse")

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.ParseToken(token)
		require.Error(t, err, token)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	svc := newService(t, "correct horse")

	// Same password, different secret: tokens must not transfer.
	hash, err := argon2id.CreateHash("correct horse", argon2id.DefaultParams)
	require.NoError(t, err)
	other, err := auth.NewService(auth.Config{
		Secret:            strings.Repeat("x", 32),
		AdminPasswordHash: hash,
		TokenTTL:          time.Hour,
	})
	require.NoError(t, err)

	foreign, err := other.Login("correct horse")
	require.NoError(t, err)
	_, err = svc.ParseToken(foreign.Token)
	require.Error(t, err)
}

func TestRequireAdminMiddleware(t *testing.T) {
	svc := newService(t, "correct horse")
	mw := auth.Middleware{Service: svc}
	handler := mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// No token.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// Valid token.
	result, err := svc.Login("correct horse")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestLoginHandler(t *testing.T) {
	svc := newService(t, "correct horse")
	h := &auth.Handlers{Service: svc, Log: zerolog.Nop()}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"password":"correct horse"}`))
	h.Login(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var result auth.LoginResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.NotEmpty(t, result.Token)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"password":"nope"}`))
	h.Login(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_CREDENTIALS")
}
