// Package custody mints and verifies the signed token proving which
// operator is behind an impersonated session. The token is the only
// path back to the operator's identity, so stop requests are rejected
// outright when it fails verification.
package custody

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "teamauth"

var (
	ErrInvalidToken = errors.New("invalid custody token")
	ErrNoSecret     = errors.New("custody signing secret is empty")
)

// Claims bind the operator's identity to one impersonation session.
type Claims struct {
	AdminEmail string `json:"admin_email"`
	AdminID    string `json:"admin_id"`
	SessionID  string `json:"session_id"`
	jwt.RegisteredClaims
}

// Mint signs a custody token valid from now until now+ttl. An empty
// secret is refused; HS256 with a zero-length key is forgeable.
func Mint(secret []byte, claims Claims, now time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	claims.Issuer = issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verify checks signature, issuer and expiry and returns the bound
// claims. now supplies the verification time so expiry is judged by the
// caller's clock.
func Verify(secret []byte, raw string, now func() time.Time) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" || claims.AdminID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
