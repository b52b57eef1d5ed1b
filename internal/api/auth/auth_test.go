package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	userauth "github.com/sonoscan/sonoscan/internal/auth"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/datastore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("github.com/sonoscan/sonoscan/internal/logger.(*BufferedFileWriter).flushLoop"),
	)
}

const testSecret = "0123456789abcdef0123456789abcdef"

func newAdapter(t *testing.T) *AccountAdapter {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = datastore.MemoryPath
	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	accounts := userauth.NewService(store, []string{"admin"})
	accounts.Cost = bcrypt.MinCost
	for _, name := range []string{"alice", "admin"} {
		ok, err := accounts.Register(context.Background(), name, "Str0ng!Pass")
		require.NoError(t, err)
		require.True(t, ok)
	}

	a, err := NewAccountAdapter(accounts, conf.SecuritySettings{SessionSecret: testSecret, TokenTTL: time.Hour})
	require.NoError(t, err)
	return a
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, Username(c)+"|"+c.Get(CtxKeyAuthMethod).(AuthMethod).String())
}

func serve(e *echo.Echo, req *http.Request, h echo.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = h(c)
	return rec
}

func TestTokensRoundTripAndExpiry(t *testing.T) {
	t.Parallel()
	tokens, err := NewTokens(testSecret, time.Hour)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	tok, exp, err := tokens.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	user, err := tokens.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	now = now.Add(2 * time.Hour)
	_, err = tokens.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensRejectForeignSignatures(t *testing.T) {
	t.Parallel()
	tokens, err := NewTokens(testSecret, time.Hour)
	require.NoError(t, err)
	other, err := NewTokens("another-secret-another-secret!!", time.Hour)
	require.NoError(t, err)

	tok, _, err := other.Issue("alice")
	require.NoError(t, err)
	_, err = tokens.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "admin",
		Issuer:    TokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Validate(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens("", time.Hour)
	assert.Error(t, err)
}

func TestAuthenticateWithBearerToken(t *testing.T) {
	t.Parallel()
	a := newAdapter(t)
	mw := NewMiddleware(a)
	e := echo.New()

	tok, _, err := a.Tokens.Issue("alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"valid token", "Bearer " + tok, http.StatusOK, "alice|Token"},
		{"lowercase scheme", "bearer " + tok, http.StatusOK, "alice|Token"},
		{"malformed header", "Token " + tok, http.StatusUnauthorized, ""},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized, ""},
		{"no credentials", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v2/predictions", http.NoBody)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := serve(e, req, mw.Authenticate(okHandler))
			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestAuthenticateRejectedHeaderSkipsHandler(t *testing.T) {
	t.Parallel()
	mw := NewMiddleware(newAdapter(t))
	e := echo.New()

	for _, header := range []string{"Token whatever", "Bearer not.a.token", "Bearer"} {
		t.Run(header, func(t *testing.T) {
			called := false
			h := mw.Authenticate(func(c echo.Context) error {
				called = true
				return c.String(http.StatusOK, "handler ran")
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v2/predictions", http.NoBody)
			req.Header.Set(echo.HeaderAuthorization, header)
			rec := serve(e, req, h)

			assert.False(t, called, "handler must not run after a 401")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotContains(t, rec.Body.String(), "handler ran")
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestLoginSessionAndLogout(t *testing.T) {
	t.Parallel()
	a := newAdapter(t)
	mw := NewMiddleware(a)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v2/auth/login", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_, err := a.Login(context.Background(), c, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := a.Login(context.Background(), c, "alice", "Str0ng!Pass")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.NotEmpty(t, res.Token)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	withCookie := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v2/auth/status", http.NoBody)
		for _, ck := range cookies {
			r.AddCookie(ck)
		}
		return r
	}

	got := serve(e, withCookie(), mw.Authenticate(okHandler))
	assert.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "alice|BrowserSession", got.Body.String())

	logoutRec := httptest.NewRecorder()
	require.NoError(t, a.Logout(e.NewContext(withCookie(), logoutRec)))
	cookies = logoutRec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Negative(t, cookies[0].MaxAge)

	got = serve(e, withCookie(), mw.Authenticate(okHandler))
	assert.Equal(t, http.StatusUnauthorized, got.Code)
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()
	a := newAdapter(t)
	mw := NewMiddleware(a)
	e := echo.New()

	for user, code := range map[string]int{"admin": http.StatusOK, "alice": http.StatusForbidden} {
		tok, _, err := a.Tokens.Issue(user)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/v2/analytics/summary", http.NoBody)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
		rec := serve(e, req, mw.Authenticate(mw.RequireAdmin(okHandler)))
		assert.Equal(t, code, rec.Code, user)
	}
}

func TestLoginLimiter(t *testing.T) {
	t.Parallel()
	l := NewLoginLimiter(0.001, 2)
	var limited []string
	l.OnLimited = func(path string) { limited = append(limited, path) }
	e := echo.New()

	codes := make([]int, 0, 4)
	for _, ip := range []string{"10.0.0.1", "10.0.0.1", "10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v2/auth/login", http.NoBody)
		req.RemoteAddr = ip + ":5000"
		rec := serve(e, req, l.Middleware(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests, http.StatusNoContent}, codes)
	assert.Len(t, limited, 1)

	assert.True(t, NewLoginLimiter(0, 1).Allow("x"))
}
