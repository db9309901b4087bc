package chat

import (
	"encoding/json"
	"errors"
	"time"
)

// FrameType tags every JSON frame on the realtime connection.
type FrameType string

// TypeMessage is the only frame type currently exchanged in either direction.
const TypeMessage FrameType = "message"

// ErrUnknownFrame is returned by DecodeInbound for frames that are not JSON
// objects or carry a tag this server does not handle.
var ErrUnknownFrame = errors.New("unrecognized frame")

// Inbound is a decoded client frame. Implementations form a closed set.
type Inbound interface {
	inbound()
}

// SubmitMessage is the client's request to post content to the session's room.
type SubmitMessage struct {
	Content string
}

func (SubmitMessage) inbound() {}

type inboundEnvelope struct {
	Type    FrameType `json:"type"`
	Content *string   `json:"content"`
}

// DecodeInbound parses one client frame. Callers ignore ErrUnknownFrame.
func DecodeInbound(data []byte) (Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrUnknownFrame
	}

	switch env.Type {
	case TypeMessage:
		if env.Content == nil {
			return nil, ErrUnknownFrame
		}
		return SubmitMessage{Content: *env.Content}, nil
	default:
		return nil, ErrUnknownFrame
	}
}

// Broadcast is the server→client frame for a persisted message. The first
// four fields are the stable contract; the rest are additive.
type Broadcast struct {
	Type      FrameType `json:"type"`
	Sender    string    `json:"sender"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	ID        int64     `json:"id,omitempty"`
	RoomID    int64     `json:"room_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// EncodeBroadcast serializes m into the broadcast frame.
func EncodeBroadcast(m Message) ([]byte, error) {
	return json.Marshal(Broadcast{
		Type:      TypeMessage,
		Sender:    m.SenderHandle,
		SenderID:  m.SenderID,
		Content:   m.Content,
		ID:        m.ID,
		RoomID:    m.RoomID,
		CreatedAt: m.CreatedAt,
	})
}

// DecodeBroadcast parses a broadcast frame.
func DecodeBroadcast(data []byte) (Broadcast, error) {
	var b Broadcast
	if err := json.Unmarshal(data, &b); err != nil {
		return Broadcast{}, err
	}
	if b.Type != TypeMessage {
		return Broadcast{}, ErrUnknownFrame
	}
	return b, nil
}
