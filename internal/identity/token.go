// Package identity resolves the local user from an access token. The client
// does not hold the signing key; validation is the server's job, so claims
// are extracted without signature verification purely to know who "self" is.
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
)

// Claims mirrors the backend's access-token claims
type Claims struct {
	jwt.RegisteredClaims
	UserID      uuid.UUID `json:"uid"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

// User is the local user as seen by the engine
type User struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	AvatarURL   string
}

// FromToken extracts the local user from an access token without verifying
// the signature
func FromToken(token string) (User, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return User{}, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if claims.UserID == uuid.Nil {
		return User{}, fmt.Errorf("%w: missing uid claim", domain.ErrTokenInvalid)
	}

	display := claims.DisplayName
	if display == "" {
		display = claims.Username
	}
	return User{
		ID:          claims.UserID,
		Username:    claims.Username,
		DisplayName: display,
		AvatarURL:   claims.AvatarURL,
	}, nil
}
