package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/broadcast"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/store/gormstore"
)

const (
	testSecret = "test-secret"
	testOrigin = "http://localhost:8080"
)

// testEnv is a fully wired server backed by a temporary SQLite database.
type testEnv struct {
	t        *testing.T
	db       *gorm.DB
	store    *gormstore.Store
	registry *broadcast.Registry
	tokens   *auth.TokenManager
	hub      *Hub
	server   *Server
	http     *httptest.Server
}

type envOption func(*Config, *Deps, *gormstore.Store)

func withCapacity(n int) envOption {
	return func(c *Config, _ *Deps, _ *gormstore.Store) { c.RoomBufferSize = n }
}

func withMessages(m Submitter) envOption {
	return func(_ *Config, d *Deps, _ *gormstore.Store) { d.Messages = m }
}

func withRateLimit(burst int, interval time.Duration) envOption {
	return func(c *Config, _ *Deps, _ *gormstore.Store) {
		c.RateLimit = RateLimitConfig{Burst: burst, RefillInterval: interval}
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	st := gormstore.New(db)
	require.NoError(t, st.Migrate(context.Background()))

	cfg := DefaultConfig()
	cfg.JWTSecret = testSecret
	cfg.RateLimit = RateLimitConfig{Burst: 100, RefillInterval: time.Second}

	log := zerolog.Nop()
	tokens := auth.NewTokenManager(auth.TokenConfig{Secret: testSecret})
	deps := Deps{
		Gate:     auth.NewGate(tokens),
		Accounts: auth.NewService(st, auth.NewPasswordHasher(4), tokens),
		Rooms:    rooms.NewLister(st, nil, 0, log),
		Database: st,
		Logger:   log,
	}
	for _, opt := range opts {
		opt(&cfg, &deps, st)
	}

	registry := broadcast.NewRegistry(broadcast.WithCapacity(cfg.RoomBufferSize))
	deps.Config = cfg
	deps.Registry = registry
	if deps.Messages == nil {
		deps.Messages = chat.NewPipeline(st, registry, cfg.MaxContentLength, log)
	}
	deps.Hub = NewHub(log)

	srv := New(deps)
	ts := httptest.NewServer(srv.Handler())

	env := &testEnv{
		t:        t,
		db:       db,
		store:    st,
		registry: registry,
		tokens:   tokens,
		hub:      deps.Hub,
		server:   srv,
		http:     ts,
	}

	t.Cleanup(func() {
		_ = env.hub.Shutdown(2 * time.Second)
		registry.Close()
		ts.Close()
		_ = st.Close()
	})
	return env
}

// seedRoom inserts a room with a fixed id.
func (e *testEnv) seedRoom(id int64, name string) {
	e.t.Helper()
	err := e.db.Exec("INSERT INTO rooms (id, name, created_at) VALUES (?, ?, ?)", id, name, time.Now()).Error
	require.NoError(e.t, err)
}

type testUser struct {
	ID     int64
	Handle string
	Token  string
}

// seedUser creates a user and a token for it without going through bcrypt.
func (e *testEnv) seedUser(handle string) testUser {
	e.t.Helper()
	email := handle + "@example.com"
	u, err := e.store.CreateUser(context.Background(), email, handle, "unused")
	require.NoError(e.t, err)

	token, err := e.tokens.Generate(u.ID, email, handle)
	require.NoError(e.t, err)
	return testUser{ID: u.ID, Handle: handle, Token: token}
}

func (e *testEnv) wsURL(roomID int64, token string) string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws/" + strconv.FormatInt(roomID, 10) + "?token=" + token
}

// dial connects to a room and waits until the session's subscription is live.
func (e *testEnv) dial(roomID int64, token string) *websocket.Conn {
	e.t.Helper()

	before := e.registry.Stats().Subscribers
	conn, resp, err := dialWS(e.wsURL(roomID, token))
	require.NoError(e.t, err)
	require.Equal(e.t, http.StatusSwitchingProtocols, resp.StatusCode)
	e.t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(e.t, func() bool {
		return e.registry.Stats().Subscribers > before
	}, 2*time.Second, 5*time.Millisecond, "session never subscribed")
	return conn
}

func dialWS(url string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", testOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

func sendFrame(t *testing.T, conn *websocket.Conn, content string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "message", "content": content}))
}

func readBroadcast(t *testing.T, conn *websocket.Conn) chat.Broadcast {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	b, err := chat.DecodeBroadcast(data)
	require.NoError(t, err)
	return b
}

// expectNoFrame asserts that nothing arrives within wait.
func expectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", data)
}

// doJSON sends a JSON request and returns the response.
func (e *testEnv) doJSON(method, path, token string, body any) *http.Response {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
