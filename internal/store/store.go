// Package store defines the persistent entities of the chat backend and the
// narrow storage contracts the rest of the application depends on.
//
// Two implementations live in subpackages: gormstore (GORM over SQLite, used
// for local runs and tests) and pgstore (pgx over PostgreSQL).
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned when registering an email that is already taken.
	ErrUserExists = errors.New("user with this email already exists")
	// ErrRoomNotFound is returned when a message references an unknown room.
	ErrRoomNotFound = errors.New("room not found")
)

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Room is a conversation channel referenced by id.
type Room struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a persisted chat message. ID and CreatedAt are assigned by the store.
type Message struct {
	ID        int64     `json:"id"`
	SenderID  int64     `json:"sender_id"`
	RoomID    int64     `json:"room_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage carries the caller-supplied fields of a message insert.
type NewMessage struct {
	SenderID int64
	RoomID   int64
	Content  string
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
}

// RoomStore lists and creates rooms.
type RoomStore interface {
	ListRooms(ctx context.Context) ([]Room, error)
	CreateRoom(ctx context.Context, name string) (Room, error)
}

// MessageStore inserts chat messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg NewMessage) (Message, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
