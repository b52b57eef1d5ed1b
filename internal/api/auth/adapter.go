// internal/api/auth/adapter.go
package auth

import (
	"context"
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	userauth "github.com/sonoscan/sonoscan/internal/auth"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// Session cookie name and keys.
const (
	SessionName        = "sonoscan_session"
	sessionKeyUsername = "username"
	sessionKeyLoginAt  = "login_at"
)

// DefaultSessionMaxAge applies when no session duration is configured.
const DefaultSessionMaxAge = 7 * 24 * time.Hour

// AccountAdapter implements Service on top of the account service, a gorilla cookie
// session store and JWT bearer tokens.
type AccountAdapter struct {
	Accounts *userauth.Service
	Store    sessions.Store
	Tokens   *Tokens
}

// NewAccountAdapter builds the session store and token issuer from the security settings.
func NewAccountAdapter(accounts *userauth.Service, s conf.SecuritySettings) (*AccountAdapter, error) {
	tokens, err := NewTokens(s.SessionSecret, s.TokenTTL)
	if err != nil {
		return nil, err
	}
	maxAge := s.SessionDuration
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	store := sessions.NewCookieStore(createSessionKey("session:" + s.SessionSecret))
	store.Options = buildSessionOptions(false, int(maxAge.Seconds()))
	return &AccountAdapter{Accounts: accounts, Store: store, Tokens: tokens}, nil
}

// createSessionKey hashes the seed into a 32 byte HMAC key.
func createSessionKey(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

func buildSessionOptions(secure bool, maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// CheckAccess returns nil when the request carries a valid session cookie.
func (a *AccountAdapter) CheckAccess(c echo.Context) error {
	if a.sessionUser(c) == "" {
		return ErrSessionNotFound
	}
	return nil
}

func (a *AccountAdapter) sessionUser(c echo.Context) string {
	sess, err := a.Store.Get(c.Request(), SessionName)
	if err != nil {
		return ""
	}
	username, _ := sess.Values[sessionKeyUsername].(string)
	return username
}

// GetUsername prefers the username the middleware stored in the context.
func (a *AccountAdapter) GetUsername(c echo.Context) string {
	if username, ok := c.Get(CtxKeyUsername).(string); ok && username != "" {
		return username
	}
	return a.sessionUser(c)
}

// GetAuthMethod prefers the method the middleware stored in the context.
func (a *AccountAdapter) GetAuthMethod(c echo.Context) AuthMethod {
	if method, ok := c.Get(CtxKeyAuthMethod).(AuthMethod); ok {
		return method
	}
	if a.sessionUser(c) != "" {
		return AuthMethodBrowserSession
	}
	return AuthMethodNone
}

// ValidateToken returns the username a token was issued to.
func (a *AccountAdapter) ValidateToken(token string) (string, error) {
	return a.Tokens.Validate(token)
}

// Login authenticates, replaces any existing session and issues a token.
func (a *AccountAdapter) Login(ctx context.Context, c echo.Context, username, password string) (*LoginResult, error) {
	if !a.Accounts.Authenticate(ctx, username, password) {
		return nil, ErrInvalidCredentials
	}

	sess, err := a.Store.New(c.Request(), SessionName)
	if err != nil {
		// a stale or foreign cookie; the fresh session replaces it
		GetLogger().Debug("discarding unreadable session cookie", logger.Error(err))
	}
	sess.Values[sessionKeyUsername] = username
	sess.Values[sessionKeyLoginAt] = time.Now().Unix()
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return nil, err
	}

	token, exp, err := a.Tokens.Issue(username)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Username: username, Token: token, ExpiresAt: exp}, nil
}

// Logout expires the session cookie.
func (a *AccountAdapter) Logout(c echo.Context) error {
	sess, err := a.Store.Get(c.Request(), SessionName)
	if err != nil {
		return ErrLogoutFailed
	}
	delete(sess.Values, sessionKeyUsername)
	sess.Options.MaxAge = -1
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return ErrLogoutFailed
	}
	return nil
}

// IsAdmin delegates to the account service.
func (a *AccountAdapter) IsAdmin(username string) bool {
	return a.Accounts.IsAdmin(username)
}
