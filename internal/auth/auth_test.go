package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/store"
)

func newTestTokens() *TokenManager {
	return NewTokenManager(TokenConfig{
		Secret:     "test-secret-key",
		Expiration: time.Hour,
		Issuer:     "test-issuer",
	})
}

func TestGate_Verify(t *testing.T) {
	tokens := newTestTokens()
	gate := NewGate(tokens)

	valid, err := tokens.Generate(42, "ada@example.com", "ada")
	require.NoError(t, err)

	noHandle, err := tokens.Generate(7, "grace@example.com", "")
	require.NoError(t, err)

	expiredTokens := newTestTokens()
	expiredTokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredTokens.Generate(42, "ada@example.com", "ada")
	require.NoError(t, err)

	otherSecret, err := NewTokenManager(TokenConfig{Secret: "other", Expiration: time.Hour}).
		Generate(42, "ada@example.com", "ada")
	require.NoError(t, err)

	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: "x@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-number",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	badSubjectToken, err := badSubject.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:            "x@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1"},
	})
	noExpiryToken, err := noExpiry.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
		wantErr    error
		want       Identity
	}{
		{name: "valid", credential: valid, want: Identity{UserID: 42, Handle: "ada", Email: "ada@example.com"}},
		{name: "handle falls back to email", credential: noHandle, want: Identity{UserID: 7, Handle: "grace@example.com", Email: "grace@example.com"}},
		{name: "missing", credential: "", wantErr: ErrMissingCredential},
		{name: "whitespace only", credential: "   ", wantErr: ErrMissingCredential},
		{name: "garbage", credential: "garbage", wantErr: ErrMalformedCredential},
		{name: "expired", credential: expired, wantErr: ErrExpiredCredential},
		{name: "wrong secret", credential: otherSecret, wantErr: ErrMalformedCredential},
		{name: "non-numeric subject", credential: badSubjectToken, wantErr: ErrMalformedCredential},
		{name: "no expiry", credential: noExpiryToken, wantErr: ErrMalformedCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gate.Verify(tt.credential)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrAuthFailure)
				assert.Equal(t, Identity{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	tokens := newTestTokens()

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokens.Validate(s)
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

func TestTokenManager_DefaultExpiration(t *testing.T) {
	m := NewTokenManager(TokenConfig{Secret: "s"})
	assert.Equal(t, 24*time.Hour, m.Expiration())
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer"))
	assert.Equal(t, "", BearerToken(""))
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, h.Verify("correct horse", hash))
	assert.False(t, h.Verify("wrong", hash))

	assert.Equal(t, DefaultBcryptCost, NewPasswordHasher(0).cost)
}

// memoryUsers implements store.UserStore for testing.
type memoryUsers struct {
	byEmail map[string]store.User
	nextID  int64
	failErr error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byEmail: make(map[string]store.User)}
}

func (m *memoryUsers) CreateUser(_ context.Context, email, username, hash string) (store.User, error) {
	if m.failErr != nil {
		return store.User{}, m.failErr
	}
	if _, ok := m.byEmail[email]; ok {
		return store.User{}, store.ErrUserExists
	}
	m.nextID++
	u := store.User{ID: m.nextID, Email: email, Username: username, PasswordHash: hash, CreatedAt: time.Now()}
	m.byEmail[email] = u
	return u, nil
}

func (m *memoryUsers) FindUserByEmail(_ context.Context, email string) (store.User, error) {
	if m.failErr != nil {
		return store.User{}, m.failErr
	}
	u, ok := m.byEmail[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func TestService_RegisterAndLogin(t *testing.T) {
	users := newMemoryUsers()
	tokens := newTestTokens()
	svc := NewService(users, NewPasswordHasher(4), tokens)
	ctx := context.Background()

	resp, err := svc.Register(ctx, RegisterRequest{Email: " Ada@Example.com ", Password: "password123", Username: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)

	id, err := NewGate(tokens).Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, id.UserID)
	assert.Equal(t, "ada", id.Handle)

	_, err = svc.Register(ctx, RegisterRequest{Email: "ada@example.com", Password: "password123", Username: "ada2"})
	assert.ErrorIs(t, err, store.ErrUserExists)

	login, err := svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)

	_, err = svc.Login(ctx, LoginRequest{Email: "ada@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(newMemoryUsers(), NewPasswordHasher(4), newTestTokens())

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{name: "bad email", req: RegisterRequest{Email: "nope", Password: "password123", Username: "u"}},
		{name: "missing username", req: RegisterRequest{Email: "a@example.com", Password: "password123"}},
		{name: "short password", req: RegisterRequest{Email: "a@example.com", Password: "short", Username: "u"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestService_StoreFailure(t *testing.T) {
	users := newMemoryUsers()
	users.failErr = errors.New("database down")
	svc := NewService(users, NewPasswordHasher(4), newTestTokens())

	_, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "password123"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthFailure)
}
