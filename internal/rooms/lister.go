// Package rooms serves the room list through a cache-aside read path.
package rooms

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Tyrowin/roomchat/internal/cache"
	"github.com/Tyrowin/roomchat/internal/store"
)

// Cache is the subset of the JSON cache the lister needs.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Lister reads rooms from the cache, falling back to the store. The cache is
// optional; its failures are logged and never returned.
type Lister struct {
	rooms store.RoomStore
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
	group singleflight.Group
}

// NewLister creates a Lister. c may be nil to disable caching.
func NewLister(rooms store.RoomStore, c Cache, ttl time.Duration, log zerolog.Logger) *Lister {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Lister{rooms: rooms, cache: c, ttl: ttl, log: log}
}

// ListRooms returns all rooms. A cache hit never touches the store.
func (l *Lister) ListRooms(ctx context.Context) ([]store.Room, error) {
	if l.cache != nil {
		var cached []store.Room
		found, err := l.cache.Get(ctx, cache.RoomsListKey, &cached)
		switch {
		case err != nil:
			l.log.Warn().Err(err).Msg("room list cache read failed, falling back to store")
		case found:
			l.log.Debug().Int("rooms", len(cached)).Msg("room list cache hit")
			return cached, nil
		default:
			l.log.Debug().Msg("room list cache miss")
		}
	}

	v, err, _ := l.group.Do(cache.RoomsListKey, func() (any, error) {
		return l.rooms.ListRooms(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rooms := v.([]store.Room)

	if l.cache != nil {
		if err := l.cache.SetWithTTL(ctx, cache.RoomsListKey, rooms, l.ttl); err != nil {
			l.log.Warn().Err(err).Msg("failed to populate room list cache")
		}
	}
	return rooms, nil
}

// CreateRoom stores a room and invalidates the cached list.
func (l *Lister) CreateRoom(ctx context.Context, name string) (store.Room, error) {
	room, err := l.rooms.CreateRoom(ctx, name)
	if err != nil {
		return store.Room{}, err
	}
	l.Invalidate(ctx)
	return room, nil
}

// Invalidate drops the cached room list. Failures are logged.
func (l *Lister) Invalidate(ctx context.Context) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, cache.RoomsListKey); err != nil {
		l.log.Warn().Err(err).Msg("failed to invalidate room list cache")
	}
}
