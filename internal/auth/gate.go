// Package auth admits connections and requests by verifying bearer tokens,
// and implements account registration and login on top of a user store.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrAuthFailure matches every credential rejection.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrMissingCredential means no token was presented.
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrAuthFailure)
	// ErrMalformedCredential means the token could not be decoded or verified.
	ErrMalformedCredential = fmt.Errorf("%w: invalid token", ErrAuthFailure)
	// ErrExpiredCredential means the token verified but is past its expiry.
	ErrExpiredCredential = fmt.Errorf("%w: token expired", ErrAuthFailure)
)

// Identity is the authenticated principal behind a session or request.
type Identity struct {
	UserID int64
	Handle string
	Email  string
}

// Gate verifies bearer credentials. It has no side effects.
type Gate struct {
	tokens *TokenManager
}

// NewGate creates a Gate backed by the given token manager.
func NewGate(tokens *TokenManager) *Gate {
	return &Gate{tokens: tokens}
}

// Verify validates the credential and decodes it into an Identity.
func (g *Gate) Verify(credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrMissingCredential
	}

	claims, err := g.tokens.Validate(credential)
	if err != nil {
		return Identity{}, err
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, ErrMalformedCredential
	}

	handle := claims.Username
	if handle == "" {
		handle = claims.Email
	}

	return Identity{UserID: userID, Handle: handle, Email: claims.Email}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. It returns an empty string when the scheme is wrong.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
