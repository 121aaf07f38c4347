package model

import "github.com/golang-jwt/jwt/v5"

// GuestClaims is the token shape issued by the external identity frontend.
// Only the display name is carried; the connection identity itself is
// assigned by the transport on upgrade.
type GuestClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}
