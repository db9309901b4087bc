package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscription is one session's receive end on a room channel. It sees every
// payload published to the room after it was created, in publish order, until
// it is closed or dropped for falling behind.
type Subscription struct {
	id      uuid.UUID
	roomID  int64
	ch      chan []byte
	channel *channel
	now     func() time.Time

	once sync.Once
	mu   sync.Mutex
	err  error
}

func newSubscription(roomID int64, capacity int, c *channel, now func() time.Time) *Subscription {
	return &Subscription{
		id:      uuid.New(),
		roomID:  roomID,
		ch:      make(chan []byte, capacity),
		channel: c,
		now:     now,
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() uuid.UUID { return s.id }

// RoomID is the room this subscription is bound to.
func (s *Subscription) RoomID() int64 { return s.roomID }

// C yields published payloads. It is closed when the subscription ends; Err
// then reports why.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Err returns nil while the subscription is live, ErrLagged if it was dropped
// for a full buffer, ErrClosed after Close, or ErrRegistryClosed on shutdown.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close detaches the subscription from its room. Safe to call more than once.
func (s *Subscription) Close() {
	s.channel.remove(s, ErrClosed, s.now())
}

// terminate is called with the owning channel's lock held.
func (s *Subscription) terminate(reason error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = reason
		s.mu.Unlock()
		close(s.ch)
	})
}
