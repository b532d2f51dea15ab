package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendrickPhan/go-verify-apple-id-token/validator"
	"google.golang.org/api/idtoken"
)

const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"
)

var errNoAudience = errors.New("no client id configured")

type ExternalTokenClaims struct {
	Issuer        string
	Subject       string
	Email         string
	EmailVerified bool
}

// Audiences splits a comma-separated client id setting. The web app and the
// mobile apps sign in with different client ids of the same project.
func Audiences(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// VerifyGoogleIDToken accepts a token issued to any of the comma-separated
// client ids in audiences.
func VerifyGoogleIDToken(ctx context.Context, tokenString, audiences string) (*ExternalTokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, errors.New("missing id token")
	}
	auds := Audiences(audiences)
	if len(auds) == 0 {
		return nil, fmt.Errorf("google: %w", errNoAudience)
	}

	var (
		payload *idtoken.Payload
		err     error
	)
	for _, aud := range auds {
		payload, err = idtoken.Validate(ctx, tokenString, aud)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("validate google id token: %w", err)
	}
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return nil, fmt.Errorf("unexpected issuer: %s", payload.Issuer)
	}

	email, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)

	return &ExternalTokenClaims{
		Issuer:        payload.Issuer,
		Subject:       payload.Subject,
		Email:         strings.TrimSpace(strings.ToLower(email)),
		EmailVerified: verified,
	}, nil
}

func VerifyAppleIDToken(ctx context.Context, tokenString, audiences string) (*ExternalTokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, errors.New("missing id token")
	}
	auds := Audiences(audiences)
	if len(auds) == 0 {
		return nil, fmt.Errorf("apple: %w", errNoAudience)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := validator.NewClient()
	var err error
	for _, aud := range auds {
		idToken, verr := client.VerifyIdToken(aud, tokenString)
		if verr != nil {
			err = verr
			continue
		}
		if idToken.Iss != "https://appleid.apple.com" {
			return nil, fmt.Errorf("unexpected issuer: %s", idToken.Iss)
		}
		email := strings.TrimSpace(strings.ToLower(idToken.Email))
		// Apple only puts verified (or private relay) addresses in the token.
		return &ExternalTokenClaims{
			Issuer:        idToken.Iss,
			Subject:       idToken.Sub,
			Email:         email,
			EmailVerified: email != "",
		}, nil
	}
	return nil, fmt.Errorf("validate apple id token: %w", err)
}
