package auth

import (
	"context"
	"fmt"
)

// Principal is the authenticated caller of a feedback connection.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

// JWTAuthenticator checks feedback connection credentials against a JWTService.
type JWTAuthenticator struct {
	jwt *JWTService
}

// NewJWTAuthenticator creates an authenticator backed by svc.
func NewJWTAuthenticator(svc *JWTService) *JWTAuthenticator {
	return &JWTAuthenticator{jwt: svc}
}

// Authenticate validates token and, for session-scoped tokens, that it was issued for sessionRef.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token, sessionRef string) (Principal, error) {
	if token == "" {
		return Principal{}, fmt.Errorf("%w: missing token", ErrInvalidToken)
	}
	claims, err := a.jwt.Validate(token)
	if err != nil {
		return Principal{}, err
	}
	if claims.SessionID != "" && claims.SessionID != sessionRef {
		return Principal{}, ErrSessionMismatch
	}
	return Principal{UserID: claims.UserID.String(), Email: claims.Email, Role: claims.Role}, nil
}
