package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind tags a broadcast message.
type Kind string

const (
	KindMessage    Kind = "message"
	KindUserJoined Kind = "user_joined"
	KindUserLeft   Kind = "user_left"
)

const (
	// DefaultUsername is used when a chat payload carries no username.
	DefaultUsername = "Anonymous"
	// DefaultMessageType is used when a chat payload carries no message_type.
	DefaultMessageType = "text"
	// TimestampLayout is the ISO-8601 layout of the timestamp field.
	TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// ErrMalformedPayload reports an inbound payload that is not a JSON object
// or lacks the content field.
var ErrMalformedPayload = errors.New("malformed payload")

// Inbound is a chat message as received from a client.
type Inbound struct {
	Content     *string `json:"content"`
	Username    string  `json:"username"`
	MessageType string  `json:"message_type"`
}

// ParseInbound decodes and validates a raw client payload. Missing optional
// fields are filled with their defaults. The returned error wraps
// ErrMalformedPayload.
func ParseInbound(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if in.Content == nil {
		return Inbound{}, fmt.Errorf("%w: missing content", ErrMalformedPayload)
	}
	if in.Username == "" {
		in.Username = DefaultUsername
	}
	if in.MessageType == "" {
		in.MessageType = DefaultMessageType
	}
	return in, nil
}

// Message is the payload delivered to every recipient of a broadcast.
// Content and MessageType are only serialized for KindMessage; ActiveUsers
// only for the presence kinds.
type Message struct {
	Type        Kind
	ClientID    string
	Username    string
	Timestamp   time.Time
	Content     string
	MessageType string
	ActiveUsers int
}

type chatWire struct {
	Type        Kind   `json:"type"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	MessageType string `json:"message_type"`
}

type presenceWire struct {
	Type        Kind   `json:"type"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Timestamp   string `json:"timestamp"`
	ActiveUsers int    `json:"active_users"`
}

// MarshalJSON renders the message in the shape clients expect for its kind.
func (m Message) MarshalJSON() ([]byte, error) {
	ts := m.Timestamp.Format(TimestampLayout)
	switch m.Type {
	case KindMessage:
		return json.Marshal(chatWire{
			Type:        m.Type,
			ClientID:    m.ClientID,
			Username:    m.Username,
			Content:     m.Content,
			Timestamp:   ts,
			MessageType: m.MessageType,
		})
	case KindUserJoined, KindUserLeft:
		return json.Marshal(presenceWire{
			Type:        m.Type,
			ClientID:    m.ClientID,
			Username:    m.Username,
			Timestamp:   ts,
			ActiveUsers: m.ActiveUsers,
		})
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}
