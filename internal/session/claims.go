package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what can be read from a token without verifying it. The
// server owns the signing key; the client only uses this for display.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Inspect decodes the registered claims of a JWT without checking its
// signature. ok is false for opaque or malformed tokens.
func Inspect(token string) (TokenInfo, bool) {
	if token == "" {
		return TokenInfo{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, false
	}
	info := TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, true
}

// Remaining reports how long the token stays valid at now. A token without
// an exp claim reports zero and false.
func (i TokenInfo) Remaining(now time.Time) (time.Duration, bool) {
	if i.ExpiresAt.IsZero() {
		return 0, false
	}
	return i.ExpiresAt.Sub(now), true
}
