package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnknownIdentity is returned when a token carries no user identity claim.
var ErrUnknownIdentity = errors.New("token carries no user identity")

// tokenClaims mirrors the claims the backend puts in its access tokens.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// TokenUserID extracts the user id an access token was issued for.
//
// The signature is deliberately not verified: the client has no signing key
// and the server remains the authority on token validity. The claim is used
// only to keep the cached user snapshot from being paired with a token for
// a different identity.
func TokenUserID(token string) (int64, error) {
	claims := &tokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.UserID == 0 {
		return 0, ErrUnknownIdentity
	}
	return claims.UserID, nil
}

// TokenExpiry extracts the expiry of an access token, if present.
func TokenExpiry(token string) (time.Time, error) {
	claims := &tokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
