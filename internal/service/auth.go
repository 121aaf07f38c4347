package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"peercourt/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService validates guest tokens minted by the external identity
// frontend. Tokens are optional; connections without one are admitted
// anonymously. With no secret configured, every presented token is rejected.
type AuthService struct {
	secret []byte
}

// NewAuthService creates the validator. secret may be empty.
func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret)}
}

// Enabled reports whether a signing secret is configured.
func (s *AuthService) Enabled() bool {
	return len(s.secret) > 0
}

// ValidateGuestToken parses and verifies a guest JWT.
func (s *AuthService) ValidateGuestToken(tokenString string) (*model.GuestClaims, error) {
	if !s.Enabled() {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &model.GuestClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.GuestClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateGuestToken mints a token the way the identity frontend does.
// Used by tests and local tooling.
func (s *AuthService) GenerateGuestToken(username string, ttl time.Duration) (string, error) {
	claims := &model.GuestClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
