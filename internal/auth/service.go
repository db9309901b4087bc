package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/Tyrowin/roomchat/internal/store"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuthFailure)
	// ErrInvalidInput wraps registration/login validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

const minPasswordLength = 8

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Response is returned by register and login.
type Response struct {
	Token string     `json:"token"`
	User  store.User `json:"user"`
}

// Service implements account registration and login.
type Service struct {
	users  store.UserStore
	hasher *PasswordHasher
	tokens *TokenManager
}

// NewService creates a Service.
func NewService(users store.UserStore, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Register creates an account and returns a token for it.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Response, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	if _, err := mail.ParseAddress(email); err != nil {
		return Response{}, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if username == "" {
		return Response{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return Response{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return Response{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, email, username, hash)
	if err != nil {
		return Response{}, err
	}

	return s.respond(user)
}

// Login verifies credentials and returns a fresh token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Response, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Response{}, ErrInvalidCredentials
		}
		return Response{}, err
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return Response{}, ErrInvalidCredentials
	}

	return s.respond(user)
}

func (s *Service) respond(user store.User) (Response, error) {
	token, err := s.tokens.Generate(user.ID, user.Email, user.Username)
	if err != nil {
		return Response{}, fmt.Errorf("generate token: %w", err)
	}
	return Response{Token: token, User: user}, nil
}
