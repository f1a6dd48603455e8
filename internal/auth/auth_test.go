package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlink/ember-backend/internal/auth"
	"github.com/emberlink/ember-backend/internal/config"
	"github.com/emberlink/ember-backend/internal/svcerrors"
)

func newVerifier(t *testing.T, secret string) *auth.JWTVerifier {
	t.Helper()
	cfg := config.New()
	cfg.Auth.JWTSecret = secret
	return auth.NewJWTVerifier(cfg)
}

func TestVerifyRoundTrip(t *testing.T) {
	v := newVerifier(t, "test-secret")

	token, err := auth.IssueToken("test-secret", 42, time.Hour)
	require.NoError(t, err)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), userID)
}

func TestVerifyFailsClosed(t *testing.T) {
	v := newVerifier(t, "test-secret")

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not-a-jwt",
		"bad chars": "a.b.c",
	}
	for name, cred := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(cred)
			assert.ErrorIs(t, err, svcerrors.ErrUnauthorized)
		})
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := newVerifier(t, "right-secret")

	token, err := auth.IssueToken("wrong-secret", 42, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, svcerrors.ErrUnauthorized)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := newVerifier(t, "test-secret")

	token, err := auth.IssueToken("test-secret", 42, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, svcerrors.ErrUnauthorized)
}
