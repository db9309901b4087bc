package broadcast

import (
	"sync"
	"time"
)

// channel fans one room's published payloads out to its subscribers. Each
// subscriber owns a bounded buffer; a publish never blocks on a slow reader.
type channel struct {
	roomID   int64
	capacity int

	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	// emptySince is when the last subscriber left; zero while occupied.
	emptySince time.Time
}

func newChannel(roomID int64, capacity int, now time.Time) *channel {
	return &channel{
		roomID:      roomID,
		capacity:    capacity,
		subscribers: make(map[*Subscription]struct{}),
		emptySince:  now,
	}
}

func (c *channel) add(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribers[sub] = struct{}{}
	c.emptySince = time.Time{}
}

// remove detaches sub and closes its buffer. It reports whether sub was
// still attached.
func (c *channel) remove(sub *Subscription, reason error, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.removeLocked(sub, reason, now)
}

func (c *channel) removeLocked(sub *Subscription, reason error, now time.Time) bool {
	if _, ok := c.subscribers[sub]; !ok {
		return false
	}
	delete(c.subscribers, sub)
	sub.terminate(reason)
	if len(c.subscribers) == 0 {
		c.emptySince = now
	}
	return true
}

// send delivers payload to every subscriber in one critical section, so
// concurrent publishers are observed in the same order by all subscribers.
// Subscribers whose buffer is full are dropped; the dropped ones are returned.
func (c *channel) send(payload []byte, now time.Time) (delivered int, dropped []*Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sub := range c.subscribers {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			dropped = append(dropped, sub)
		}
	}

	for _, sub := range dropped {
		c.removeLocked(sub, ErrLagged, now)
	}
	return delivered, dropped
}

// closeAll terminates every subscription with reason.
func (c *channel) closeAll(reason error, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for sub := range c.subscribers {
		if c.removeLocked(sub, reason, now) {
			n++
		}
	}
	return n
}

func (c *channel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.subscribers)
}

// idleSince reports when the channel became empty, or false if it has subscribers.
func (c *channel) idleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subscribers) > 0 {
		return time.Time{}, false
	}
	return c.emptySince, true
}
