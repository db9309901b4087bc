// Package pgstore implements store.Store on PostgreSQL using a pgx pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tyrowin/roomchat/internal/store"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	username      TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rooms (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id         BIGSERIAL PRIMARY KEY,
	sender_id  BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	room_id    BIGINT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages(room_id);
`

// Store is a pgx-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open creates a connection pool for the given postgres:// URL and verifies it.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash string) (store.User, error) {
	u := store.User{Email: email, Username: username, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at`,
		email, username, passwordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return store.User{}, store.ErrUserExists
		}
		return store.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (store.User, error) {
	var u store.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, username, password_hash, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.User{}, store.ErrNotFound
		}
		return store.User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]store.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM rooms ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Room, error) {
		var r store.Room
		err := row.Scan(&r.ID, &r.Name, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rooms: %w", err)
	}
	return rooms, nil
}

func (s *Store) CreateRoom(ctx context.Context, name string) (store.Room, error) {
	r := store.Room{Name: name}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rooms (name) VALUES ($1) RETURNING id, created_at`, name,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return store.Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	return r, nil
}

func (s *Store) InsertMessage(ctx context.Context, msg store.NewMessage) (store.Message, error) {
	m := store.Message{SenderID: msg.SenderID, RoomID: msg.RoomID, Content: msg.Content}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (sender_id, room_id, content) VALUES ($1, $2, $3) RETURNING id, created_at`,
		msg.SenderID, msg.RoomID, msg.Content,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == codeForeignKeyViolation {
			return store.Message{}, store.ErrRoomNotFound
		}
		return store.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
