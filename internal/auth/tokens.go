package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "movietrackr"

var ErrInvalidToken = errors.New("invalid_token")

// TokenCodec issues HS256 access tokens that wrap a session id, so bearer
// clients go through the same session revocation as cookie clients.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func NewTokenCodec(secret []byte) TokenCodec {
	secretCopy := make([]byte, len(secret))
	copy(secretCopy, secret)
	return TokenCodec{secret: secretCopy, now: time.Now}
}

func (c TokenCodec) Enabled() bool { return len(c.secret) > 0 }

func (c TokenCodec) Issue(sessionID, userID string, ttl time.Duration) (string, time.Time, error) {
	if !c.Enabled() {
		return "", time.Time{}, errors.New("token secret not configured")
	}
	now := c.clock()
	exp := now.Add(ttl)
	claims := sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// SessionID validates a token and returns the session id it carries.
func (c TokenCodec) SessionID(token string) (string, error) {
	if !c.Enabled() {
		return "", ErrInvalidToken
	}
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.SessionID == "" {
		return "", ErrInvalidToken
	}
	return claims.SessionID, nil
}

func (c TokenCodec) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}
