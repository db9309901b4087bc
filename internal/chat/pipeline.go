// Package chat validates, persists and publishes chat messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/store"
)

// DefaultMaxContentLength bounds a message's content, counted in runes.
const DefaultMaxContentLength = 4096

var (
	// ErrValidation matches every content validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrEmptyContent is returned for blank content.
	ErrEmptyContent = fmt.Errorf("%w: content must not be empty", ErrValidation)
	// ErrContentTooLong is returned when content exceeds the configured limit.
	ErrContentTooLong = fmt.Errorf("%w: content too long", ErrValidation)
)

// Message is an immutable persisted chat message enriched with its sender's handle.
type Message struct {
	ID           int64     `json:"id"`
	SenderID     int64     `json:"sender_id"`
	SenderHandle string    `json:"sender"`
	RoomID       int64     `json:"room_id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

// Publisher fans a serialized payload out to a room's subscribers and
// reports how many were dropped.
type Publisher interface {
	Publish(roomID int64, payload []byte) (dropped int)
}

// Pipeline persists messages and then publishes them. A message is never
// published unless its insert succeeded.
type Pipeline struct {
	messages  store.MessageStore
	publisher Publisher
	maxLength int
	log       zerolog.Logger
}

// NewPipeline creates a Pipeline. A non-positive maxLength uses DefaultMaxContentLength.
func NewPipeline(messages store.MessageStore, publisher Publisher, maxLength int, log zerolog.Logger) *Pipeline {
	if maxLength <= 0 {
		maxLength = DefaultMaxContentLength
	}
	return &Pipeline{
		messages:  messages,
		publisher: publisher,
		maxLength: maxLength,
		log:       log,
	}
}

// Submit validates content, persists it and publishes the stored record to
// roomID. Store errors are returned unchanged and nothing is published.
// Publish drops affect other subscribers only and never fail the call.
func (p *Pipeline) Submit(ctx context.Context, sender auth.Identity, roomID int64, content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > p.maxLength {
		return Message{}, ErrContentTooLong
	}

	stored, err := p.messages.InsertMessage(ctx, store.NewMessage{
		SenderID: sender.UserID,
		RoomID:   roomID,
		Content:  content,
	})
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:           stored.ID,
		SenderID:     stored.SenderID,
		SenderHandle: sender.Handle,
		RoomID:       stored.RoomID,
		Content:      stored.Content,
		CreatedAt:    stored.CreatedAt,
	}

	payload, err := EncodeBroadcast(msg)
	if err != nil {
		p.log.Error().Err(err).Int64("message_id", msg.ID).Msg("failed to encode broadcast")
		return msg, nil
	}

	if dropped := p.publisher.Publish(roomID, payload); dropped > 0 {
		p.log.Warn().
			Int64("room_id", roomID).
			Int64("message_id", msg.ID).
			Int("dropped", dropped).
			Msg("slow subscribers dropped during publish")
	}
	return msg, nil
}
