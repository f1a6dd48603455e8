package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/emberlink/ember-backend/internal/config"
	"github.com/emberlink/ember-backend/internal/svcerrors"
)

// Verifier is the identity contract: given a bearer credential, return the
// verified user id or fail closed.
type Verifier interface {
	Verify(credential string) (uint64, error)
}

// JWTVerifier verifies HMAC-signed tokens whose subject is the user id.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(cfg *config.Config) *JWTVerifier {
	return &JWTVerifier{secret: []byte(cfg.Auth.JWTSecret)}
}

// Verify parses and validates the token. Any parse, signature, expiry or
// claim failure maps to ErrUnauthorized; no partial identity is returned.
func (v *JWTVerifier) Verify(credential string) (uint64, error) {
	if credential == "" {
		return 0, svcerrors.ErrUnauthorized
	}

	t, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !t.Valid {
		return 0, svcerrors.ErrUnauthorized
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return 0, svcerrors.ErrUnauthorized
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, svcerrors.ErrUnauthorized
	}
	userID, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || userID == 0 {
		return 0, svcerrors.ErrUnauthorized
	}
	return userID, nil
}

// IssueToken mints a token for the given user, used by the seed command and
// by tests.
func IssueToken(secret string, userID uint64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}
