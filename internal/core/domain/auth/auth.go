package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is the bearer token held by the network client.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiresWithin reports whether the token is expired or will be within margin.
func (t *Token) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if t == nil || t.Value == "" {
		return true
	}
	return !now.Add(margin).Before(t.ExpiresAt)
}

// TokenRequest is the body posted to the auth endpoint.
type TokenRequest struct {
	DeviceID string `json:"device_id"`
	APIKey   string `json:"api_key,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// TokenResponse is the auth endpoint reply.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	// ExpiresIn is in seconds; when zero the expiry is read from the JWT exp claim.
	ExpiresIn int64 `json:"expires_in"`
}

// DeviceClaims is the claim set the auth endpoint mints for a device session.
type DeviceClaims struct {
	DeviceID string `json:"device_id"`
	Platform string `json:"platform,omitempty"`

	jwt.RegisteredClaims
}
