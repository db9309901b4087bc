// Package broadcast implements the process-wide room registry: a map from
// room id to a bounded fan-out channel, with lazily created channels and a
// drop-the-laggard backpressure policy.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCapacity is the number of pending payloads buffered per subscriber.
const DefaultCapacity = 100

var (
	// ErrLagged is the terminal error of a subscription dropped for a full buffer.
	ErrLagged = errors.New("subscriber lagged behind and was dropped")
	// ErrClosed is the terminal error of a subscription closed by its owner.
	ErrClosed = errors.New("subscription closed")
	// ErrRegistryClosed is returned once the registry has been shut down.
	ErrRegistryClosed = errors.New("room registry closed")
)

// Stats is a point-in-time view of the registry.
type Stats struct {
	Rooms       int `json:"rooms"`
	Subscribers int `json:"subscribers"`
}

// Registry maps room ids to broadcast channels. A channel is created by the
// first Subscribe for its room and, unless the idle reaper is enabled, lives
// for the rest of the process.
type Registry struct {
	capacity int
	log      zerolog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	rooms  map[int64]*channel
	closed bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithCapacity sets the per-subscriber buffer size.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithLogger sets the logger used for drop and eviction events.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		capacity: DefaultCapacity,
		log:      zerolog.Nop(),
		now:      time.Now,
		rooms:    make(map[int64]*channel),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe returns a new subscription to roomID, creating the room's channel
// if this is its first subscriber. The subscriber is attached while the
// registry lock is held so a concurrent Sweep cannot strand it on an evicted
// channel.
func (r *Registry) Subscribe(roomID int64) (*Subscription, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRegistryClosed
	}
	if c, ok := r.rooms[roomID]; ok {
		sub := r.attach(roomID, c)
		r.mu.RUnlock()
		return sub, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	c, ok := r.rooms[roomID]
	if !ok {
		c = newChannel(roomID, r.capacity, r.now())
		r.rooms[roomID] = c
		r.log.Debug().Int64("room_id", roomID).Msg("room channel created")
	}
	return r.attach(roomID, c), nil
}

func (r *Registry) attach(roomID int64, c *channel) *Subscription {
	sub := newSubscription(roomID, r.capacity, c, r.now)
	c.add(sub)
	return sub
}

// Publish sends payload to every current subscriber of roomID and returns how
// many subscribers were dropped because their buffer was full. Publishing to
// a room nobody has joined is a no-op. Publish never blocks on a subscriber.
func (r *Registry) Publish(roomID int64, payload []byte) (dropped int) {
	r.mu.RLock()
	c, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	delivered, laggards := c.send(payload, r.now())
	for _, sub := range laggards {
		r.log.Warn().
			Int64("room_id", roomID).
			Str("subscription_id", sub.ID().String()).
			Int("capacity", r.capacity).
			Msg("dropping slow subscriber")
	}
	r.log.Debug().
		Int64("room_id", roomID).
		Int("delivered", delivered).
		Int("dropped", len(laggards)).
		Msg("published")
	return len(laggards)
}

// Sweep evicts channels that have had no subscribers for at least idle and
// returns how many were evicted. A non-positive idle evicts nothing.
func (r *Registry) Sweep(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, c := range r.rooms {
		since, empty := c.idleSince()
		if !empty || now.Sub(since) < idle {
			continue
		}
		delete(r.rooms, id)
		evicted++
	}
	if evicted > 0 {
		r.log.Debug().Int("evicted", evicted).Int("remaining", len(r.rooms)).Msg("idle room channels evicted")
	}
	return evicted
}

// RunReaper calls Sweep every interval until ctx is done. It returns
// immediately when idle or interval is non-positive.
func (r *Registry) RunReaper(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// Stats returns the number of room channels and live subscriptions.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Rooms: len(r.rooms)}
	for _, c := range r.rooms {
		s.Subscribers += c.count()
	}
	return s
}

// Close terminates every subscription with ErrRegistryClosed and rejects
// further subscriptions. Used during graceful shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	channels := make([]*channel, 0, len(r.rooms))
	for _, c := range r.rooms {
		channels = append(channels, c)
	}
	r.mu.Unlock()

	closed := 0
	now := r.now()
	for _, c := range channels {
		closed += c.closeAll(ErrRegistryClosed, now)
	}
	r.log.Info().Int("rooms", len(channels)).Int("subscriptions", closed).Msg("room registry closed")
}
