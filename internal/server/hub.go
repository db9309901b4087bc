package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrHubClosed is returned by Start once shutdown has begun.
var ErrHubClosed = errors.New("hub is shutting down")

// Hub tracks running sessions so they can be counted and drained on
// shutdown. Message routing lives in the room registry, not here.
type Hub struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewHub creates a Hub ready to accept sessions.
func NewHub(log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Start runs s in its own goroutine until it ends or the hub shuts down.
func (h *Hub) Start(s *Session) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.sessions[s.ID()] = s
	count := len(h.sessions)
	h.wg.Add(1)
	h.mu.Unlock()

	h.log.Debug().Str("session_id", s.ID().String()).Int("sessions", count).Msg("session registered")

	go func() {
		defer h.wg.Done()
		defer h.remove(s)
		_ = s.Run(h.ctx)
	}()
	return nil
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID())
	count := len(h.sessions)
	h.mu.Unlock()

	h.log.Debug().Str("session_id", s.ID().String()).Int("sessions", count).Msg("session unregistered")
}

// Count returns the number of running sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown stops accepting sessions, cancels the running ones and waits for
// them to finish or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.closed = true
	count := len(h.sessions)
	h.mu.Unlock()

	h.log.Info().Int("sessions", count).Msg("initiating hub shutdown")
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Int("sessions", h.Count()).Msg("hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
