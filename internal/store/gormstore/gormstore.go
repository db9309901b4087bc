// Package gormstore implements store.Store with GORM on SQLite.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/roomchat/internal/store"
)

type userRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Email        string `gorm:"uniqueIndex;not null"`
	Username     string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type roomRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
}

func (roomRow) TableName() string { return "rooms" }

type messageRow struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"`
	SenderID  int64   `gorm:"not null;index"`
	Sender    userRow `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE"`
	RoomID    int64   `gorm:"not null;index"`
	Room      roomRow `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	Content   string  `gorm:"not null"`
	CreatedAt time.Time
}

func (messageRow) TableName() string { return "messages" }

// Store is a GORM-backed store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the SQLite database at path. Foreign keys are enforced so
// that messages cannot reference rooms that do not exist.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(withForeignKeys(path)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every new connection to :memory: gets its own empty database.
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db), nil
}

// New wraps an existing GORM handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// Migrate creates or updates the users, rooms and messages tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &roomRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// CreateUser inserts a new account.
func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash string) (store.User, error) {
	row := userRow{Email: email, Username: username, PasswordHash: passwordHash}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return store.User{}, store.ErrUserExists
		}
		return store.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return row.toUser(), nil
}

// FindUserByEmail looks up an account by email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (store.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.User{}, store.ErrNotFound
		}
		return store.User{}, fmt.Errorf("failed to find user: %w", err)
	}
	return row.toUser(), nil
}

// ListRooms returns every room ordered by id.
func (s *Store) ListRooms(ctx context.Context) ([]store.Room, error) {
	var rows []roomRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	rooms := make([]store.Room, 0, len(rows))
	for _, r := range rows {
		rooms = append(rooms, r.toRoom())
	}
	return rooms, nil
}

// CreateRoom inserts a room.
func (s *Store) CreateRoom(ctx context.Context, name string) (store.Room, error) {
	row := roomRow{Name: name}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return store.Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	return row.toRoom(), nil
}

// InsertMessage persists a message and returns it with its generated id and timestamp.
func (s *Store) InsertMessage(ctx context.Context, msg store.NewMessage) (store.Message, error) {
	row := messageRow{
		SenderID: msg.SenderID,
		RoomID:   msg.RoomID,
		Content:  msg.Content,
	}
	// Omit the associations so GORM does not try to upsert empty users/rooms.
	if err := s.db.WithContext(ctx).Omit("Sender", "Room").Create(&row).Error; err != nil {
		if isForeignKeyViolation(err) {
			return store.Message{}, store.ErrRoomNotFound
		}
		return store.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return store.Message{
		ID:        row.ID,
		SenderID:  row.SenderID,
		RoomID:    row.RoomID,
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
	}, nil
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isForeignKeyViolation(err error) bool {
	return errors.Is(err, gorm.ErrForeignKeyViolated) ||
		strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func (r userRow) toUser() store.User {
	return store.User{
		ID:           r.ID,
		Email:        r.Email,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

func (r roomRow) toRoom() store.Room {
	return store.Room{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
}
