package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig holds bearer token settings.
type TokenConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// DefaultTokenConfig returns the defaults used when nothing is configured.
// The secret is intentionally empty; callers must provide one.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		Expiration: 24 * time.Hour,
		Issuer:     "roomchat",
	}
}

// Claims are the custom JWT claims. Subject carries the user id.
type Claims struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates HS256 bearer tokens.
type TokenManager struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenManager creates a TokenManager with the given configuration.
func NewTokenManager(config TokenConfig) *TokenManager {
	if config.Expiration <= 0 {
		config.Expiration = DefaultTokenConfig().Expiration
	}
	return &TokenManager{config: config, now: time.Now}
}

// Generate signs a token for the given user.
func (m *TokenManager) Generate(userID int64, email, username string) (string, error) {
	now := m.now()
	claims := Claims{
		Email:    email,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.Expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.Secret))
}

// Validate parses and verifies a token, returning its claims.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrMalformedCredential
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, ErrMalformedCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformedCredential
	}
	return claims, nil
}

// Expiration returns the configured token lifetime.
func (m *TokenManager) Expiration() time.Duration {
	return m.config.Expiration
}
