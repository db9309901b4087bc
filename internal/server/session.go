package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/broadcast"
	"github.com/Tyrowin/roomchat/internal/chat"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	submitTimeout = 10 * time.Second
)

// CloseSlowConsumer is the close reason sent to a session dropped for lagging.
const CloseSlowConsumer = "slow consumer"

var (
	// ErrPeerClosed ends a session whose client went away.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrSessionCancelled ends a session stopped from the server side.
	ErrSessionCancelled = errors.New("session cancelled")
)

// SessionState is a step in a session's lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateSubscribed
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Subscriber hands out room subscriptions.
type Subscriber interface {
	Subscribe(roomID int64) (*broadcast.Subscription, error)
}

// Submitter accepts chat messages from a verified sender.
type Submitter interface {
	Submit(ctx context.Context, sender auth.Identity, roomID int64, content string) (chat.Message, error)
}

// SessionOptions carries the per-connection limits.
type SessionOptions struct {
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	PingPeriod     time.Duration
	PongWait       time.Duration
}

// Session binds one upgraded connection, one identity and one room. It runs
// an inbound and an outbound loop; whichever exits first ends both.
type Session struct {
	id       uuid.UUID
	identity auth.Identity
	roomID   int64
	conn     *websocket.Conn

	subscriber Subscriber
	submitter  Submitter
	limiter    *rateLimiter
	opts       SessionOptions
	log        zerolog.Logger

	state atomic.Int32
	sub   *broadcast.Subscription
}

// NewSession creates a session for an authenticated identity.
func NewSession(conn *websocket.Conn, identity auth.Identity, roomID int64, subscriber Subscriber, submitter Submitter, opts SessionOptions, log zerolog.Logger) *Session {
	if opts.PongWait <= 0 {
		opts.PongWait = pongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = min(pingPeriod, (opts.PongWait*9)/10)
	}

	id := uuid.New()
	s := &Session{
		id:         id,
		identity:   identity,
		roomID:     roomID,
		conn:       conn,
		subscriber: subscriber,
		submitter:  submitter,
		limiter:    newRateLimiter(opts.RateLimit),
		opts:       opts,
		log: log.With().
			Str("session_id", id.String()).
			Int64("room_id", roomID).
			Int64("user_id", identity.UserID).
			Logger(),
	}
	s.state.Store(int32(StateAuthenticated))
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// RoomID is the room the session is bound to.
func (s *Session) RoomID() int64 { return s.roomID }

// Identity is the verified sender.
func (s *Session) Identity() auth.Identity { return s.identity }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
	s.log.Debug().Stringer("state", st).Msg("session state")
}

// Run subscribes to the room and serves the connection until either loop
// stops or ctx is cancelled. The connection and the subscription are both
// released before Run returns. The returned error describes why the session
// ended; a client hanging up cleanly yields ErrPeerClosed.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateClosed)

	sub, err := s.subscriber.Subscribe(s.roomID)
	if err != nil {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
		s.closeConn()
		return fmt.Errorf("subscribe to room %d: %w", s.roomID, err)
	}
	s.sub = sub
	defer sub.Close()
	s.setState(StateSubscribed)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.writeLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		s.setState(StateClosing)
		s.closeConn()
		return nil
	})

	s.setState(StateActive)
	s.log.Info().Str("handle", s.identity.Handle).Msg("session started")

	err = g.Wait()
	s.log.Info().AnErr("reason", err).Msg("session ended")
	return err
}

// readLoop always returns a non-nil error so that its exit cancels the group.
func (s *Session) readLoop(ctx context.Context) error {
	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return s.readError(ctx, err)
		}

		if !s.limiter.allow() {
			s.log.Warn().
				Int("burst", s.opts.RateLimit.Burst).
				Dur("refill_interval", s.opts.RateLimit.RefillInterval).
				Msg("rate limit exceeded; discarding frame")
			continue
		}

		frame, err := chat.DecodeInbound(raw)
		if err != nil {
			s.log.Debug().Err(err).Int("bytes", len(raw)).Msg("ignoring frame")
			continue
		}

		switch f := frame.(type) {
		case chat.SubmitMessage:
			s.submit(ctx, f.Content)
		}
	}
}

// submit runs detached from session cancellation so an insert that has
// started is not abandoned when the peer disconnects.
func (s *Session) submit(ctx context.Context, content string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
	defer cancel()

	msg, err := s.submitter.Submit(ctx, s.identity, s.roomID, content)
	switch {
	case errors.Is(err, chat.ErrValidation):
		s.log.Debug().Err(err).Msg("rejected message")
	case err != nil:
		s.log.Error().Err(err).Msg("failed to submit message")
	default:
		s.log.Debug().Int64("message_id", msg.ID).Msg("message submitted")
	}
}

func (s *Session) readError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ErrSessionCancelled
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn().Int64("max_bytes", s.opts.MaxMessageSize).Msg("frame exceeded maximum size")
		return fmt.Errorf("read: %w", err)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return ErrPeerClosed
	case isExpectedCloseError(err):
		return fmt.Errorf("%w: %w", ErrPeerClosed, err)
	default:
		s.log.Warn().Err(err).Msg("WebSocket read error")
		return fmt.Errorf("read: %w", err)
	}
}

// writeLoop is the only writer of data frames on the connection.
func (s *Session) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ErrSessionCancelled

		case payload, ok := <-s.sub.C():
			if !ok {
				return s.subscriptionEnded()
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return s.writeError(err)
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return s.writeError(err)
			}
		}
	}
}

func (s *Session) subscriptionEnded() error {
	reason := s.sub.Err()
	switch {
	case errors.Is(reason, broadcast.ErrLagged):
		s.log.Warn().Msg("disconnecting slow consumer")
		s.closeWith(websocket.ClosePolicyViolation, CloseSlowConsumer)
	case errors.Is(reason, broadcast.ErrRegistryClosed):
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
	default:
		s.closeWith(websocket.CloseNormalClosure, "")
	}
	return fmt.Errorf("subscription ended: %w", reason)
}

func (s *Session) writeError(err error) error {
	if isExpectedCloseError(err) {
		return fmt.Errorf("%w: %w", ErrPeerClosed, err)
	}
	s.log.Warn().Err(err).Msg("WebSocket write error")
	return fmt.Errorf("write: %w", err)
}

// closeWith sends a close frame. Errors are expected if the peer is already gone.
func (s *Session) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
		s.log.Debug().Err(err).Msg("error writing close frame")
	}
}

func (s *Session) closeConn() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Debug().Err(err).Msg("error closing connection")
	}
}
