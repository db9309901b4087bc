package server

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/broadcast"
	"github.com/Tyrowin/roomchat/internal/store"
)

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	Verify(credential string) (auth.Identity, error)
}

// Accounts registers and logs in users.
type Accounts interface {
	Register(ctx context.Context, req auth.RegisterRequest) (auth.Response, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.Response, error)
}

// RoomService lists and creates rooms.
type RoomService interface {
	ListRooms(ctx context.Context) ([]store.Room, error)
	CreateRoom(ctx context.Context, name string) (store.Room, error)
}

// RoomRegistry is the subset of the broadcast registry the transport uses.
type RoomRegistry interface {
	Subscriber
	Stats() broadcast.Stats
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is wired with.
type Deps struct {
	Config   Config
	Gate     Verifier
	Accounts Accounts
	Rooms    RoomService
	Registry RoomRegistry
	Messages Submitter
	Hub      *Hub
	Database Pinger
	// Cache is nil when no cache is configured.
	Cache  Pinger
	Logger zerolog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	cfg      Config
	gate     Verifier
	accounts Accounts
	rooms    RoomService
	registry RoomRegistry
	messages Submitter
	hub      *Hub
	database Pinger
	cache    Pinger
	log      zerolog.Logger

	origins  originPolicy
	upgrader websocket.Upgrader
}

// New creates a Server. A nil Hub gets a fresh one.
func New(deps Deps) *Server {
	cfg := deps.Config.Sanitize()
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Logger)
	}

	s := &Server{
		cfg:      cfg,
		gate:     deps.Gate,
		accounts: deps.Accounts,
		rooms:    deps.Rooms,
		registry: deps.Registry,
		messages: deps.Messages,
		hub:      deps.Hub,
		database: deps.Database,
		cache:    deps.Cache,
		log:      deps.Logger,
		origins:  newOriginPolicy(cfg.AllowedOrigins, deps.Logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin(deps.Logger),
	}
	return s
}

// Hub returns the session hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}
