package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1)
	uid := uuid.New()

	token, err := svc.Generate(uid, "ada@example.com", "candidate", "sess-1")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, uid, claims.UserID)
	assert.Equal(t, "candidate", claims.Role)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("secret", 1)
	other := NewJWTService("other-secret", 1)
	expired := NewJWTService("secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }

	wrongKey, err := other.Generate(uuid.New(), "a@b.c", "candidate", "")
	require.NoError(t, err)
	stale, err := expired.Generate(uuid.New(), "a@b.c", "candidate", "")
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":     "not.a.jwt",
		"wrong key":   wrongKey,
		"expired":     stale,
		"alg none":    unsigned,
		"empty token": "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTAuthenticator_SessionScope(t *testing.T) {
	svc := NewJWTService("secret", 1)
	authn := NewJWTAuthenticator(svc)
	uid := uuid.New()

	scoped, err := svc.Generate(uid, "a@b.c", "candidate", "sess-1")
	require.NoError(t, err)
	open, err := svc.Generate(uid, "a@b.c", "candidate", "")
	require.NoError(t, err)

	p, err := authn.Authenticate(context.Background(), scoped, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, uid.String(), p.UserID)

	_, err = authn.Authenticate(context.Background(), scoped, "sess-2")
	assert.ErrorIs(t, err, ErrSessionMismatch)

	_, err = authn.Authenticate(context.Background(), open, "anything")
	assert.NoError(t, err)

	_, err = authn.Authenticate(context.Background(), "", "sess-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
