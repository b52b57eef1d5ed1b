package auth

import (
	"crypto/sha256"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sonoscan/sonoscan/internal/errors"
)

// TokenIssuer is the JWT issuer and audience claim.
const TokenIssuer = "sonoscan"

// DefaultTokenTTL applies when no TTL is configured.
const DefaultTokenTTL = 12 * time.Hour

// Tokens issues and validates HS256 bearer tokens. The subject claim carries the username.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens derives the signing key from secret.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.Newf("token secret is empty").
			Component("auth").
			Category(errors.CategoryConfiguration).
			Context("setting", "security.sessionsecret").
			Build()
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	key := sha256.Sum256([]byte("token:" + secret))
	return &Tokens{secret: key[:], ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for username.
func (t *Tokens) Issue(username string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    TokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, errors.New(err).Component("auth").Category(errors.CategorySystem).Build()
	}
	return signed, exp, nil
}

// Validate returns the username of a valid token, or ErrInvalidToken.
func (t *Tokens) Validate(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
