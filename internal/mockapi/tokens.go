package mockapi

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type tokenClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func (ti tokenIssuer) issue(userID int64, kind string) (string, error) {
	ttl := ti.accessTTL
	if kind == tokenTypeRefresh {
		ttl = ti.refreshTTL
	}
	now := ti.now()
	claims := tokenClaims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("mockapi: sign %s token: %w", kind, err)
	}
	return signed, nil
}

// tokenError carries the status and message a rejected bearer token earns.
type tokenError struct {
	status  int
	message string
}

func (e *tokenError) Error() string { return e.message }

var (
	errTokenExpired   = &tokenError{status: 401, message: "Token has expired"}
	errTokenMissing   = &tokenError{status: 401, message: "Missing Authorization Header"}
	errTokenRevoked   = &tokenError{status: 401, message: "Token has been revoked"}
	errTokenInvalid   = &tokenError{status: 422, message: "Signature verification failed"}
	errNeedAccess     = &tokenError{status: 422, message: "Only access tokens are allowed"}
	errNeedRefresh    = &tokenError{status: 422, message: "Only refresh tokens are allowed"}
	errBadTokenFormat = &tokenError{status: 422, message: "Bad Authorization header. Expected 'Authorization: Bearer <JWT>'"}
)

// verify parses raw and checks it is an unexpired token of the wanted kind.
func (ti tokenIssuer) verify(raw, kind string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(ti.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired
		}
		return nil, errTokenInvalid
	}
	if claims.Type != kind {
		if kind == tokenTypeRefresh {
			return nil, errNeedRefresh
		}
		return nil, errNeedAccess
	}
	return claims, nil
}

func (c *tokenClaims) userID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}
