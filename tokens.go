package authgate

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the fixed bearer token lifetime.
const TokenTTL = 7 * 24 * time.Hour

// TokenClaims are the claims carried by a bearer token: principal id (sub)
// and email, with fixed expiry. Stateless — validity is signature + expiry,
// no server-side record.
type TokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// TokenIssuer mints and verifies signed bearer tokens for verified
// principals.
type TokenIssuer struct {
	secret []byte
	issuer string

	// now is swappable for expiry tests
	now func() time.Time
}

// NewTokenIssuer returns an issuer for the given signing key. An empty key is
// a startup failure, never a per-request condition.
func NewTokenIssuer(secret, issuer string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token signing key is not configured")
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue mints a token asserting the principal's id and email, expiring
// TokenTTL from now.
func (ti *TokenIssuer) Issue(p *Principal) (string, error) {
	now := ti.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		Email: p.Email,
	})
	return token.SignedString(ti.secret)
}

// Verify validates signature and expiry and returns the asserted principal id
// and email. Errors are ErrTokenExpired for an expired token and
// ErrTokenInvalid for everything else.
func (ti *TokenIssuer) Verify(tokenString string) (principalID, email string, err error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(ti.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrTokenExpired
		}
		return "", "", ErrTokenInvalid
	}
	if !token.Valid || claims.Subject == "" {
		return "", "", ErrTokenInvalid
	}
	return claims.Subject, claims.Email, nil
}
