package session

import (
	"crypto/subtle"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bimatrack/bimatrack-backend/pkg/errors"
)

// CSRFIssuer mints and verifies CSRF tokens. Tokens are signed claims bound
// to the session ID, so a token stolen from one session is useless with
// another session's cookie.
type CSRFIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewCSRFIssuer creates a CSRF token issuer
func NewCSRFIssuer(secret string, ttl time.Duration) *CSRFIssuer {
	return &CSRFIssuer{secret: []byte(secret), ttl: ttl}
}

type csrfClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Issue mints a CSRF token for a session.
func (i *CSRFIssuer) Issue(sessionID string) (string, error) {
	now := time.Now().UTC()
	claims := csrfClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks a CSRF token against the current session.
func (i *CSRFIssuer) Verify(token, sessionID string) error {
	var claims csrfClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Forbidden("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return errors.Forbidden("invalid CSRF token")
	}
	if subtle.ConstantTimeCompare([]byte(claims.SessionID), []byte(sessionID)) != 1 {
		return errors.Forbidden("CSRF token does not match session")
	}
	return nil
}
