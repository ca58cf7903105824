// Package chat holds the room registry, history buffers and broadcast engine
// behind the chat relay. It has no knowledge of the transport: connections
// are reached only through the Conn interface.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageType tags every message exchanged with clients.
type MessageType string

// Message types understood by the web client.
const (
	TypeChat    MessageType = "chat_message"
	TypeServer  MessageType = "server_message"
	TypeHistory MessageType = "chat_history"
	TypeJoin    MessageType = "user_join"
	TypeQuit    MessageType = "user_quit"
)

// TimeLayout is the second-precision timestamp format stamped by the server.
const TimeLayout = "2006-01-02 15:04:05"

var (
	// ErrMalformedMessage is returned when an incoming payload is not a JSON message.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrMissingSender is returned when an incoming message carries no user name.
	ErrMissingSender = errors.New("message has no sender")
	// ErrMissingRoom is returned when a message names no room and its connection has none.
	ErrMissingRoom = errors.New("message has no room")
	// ErrNotDelivered is returned when a direct send found no open connection to accept it.
	ErrNotDelivered = errors.New("message not delivered")
	// ErrServerOnlyType is returned when a client sends a type only the server may emit.
	ErrServerOnlyType = errors.New("message type is reserved for the server")
)

// Message is the value exchanged between the relay and its clients.
// Empty optional fields are left out of the encoding.
type Message struct {
	Room        string      `json:"roomName"`
	Sender      string      `json:"userName,omitempty"`
	DisplayName string      `json:"customName,omitempty"`
	Timestamp   string      `json:"time,omitempty"`
	Body        string      `json:"message,omitempty"`
	Type        MessageType `json:"type"`
}

// ParseMessage decodes a client payload. A message without a sender is
// rejected with ErrMissingSender.
func ParseMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if strings.TrimSpace(msg.Sender) == "" {
		return Message{}, ErrMissingSender
	}
	return msg, nil
}

// Encode returns the JSON form of the message.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// IsPresence reports whether the message is a server-synthesized join or quit.
func (m Message) IsPresence() bool {
	return m.Type == TypeJoin || m.Type == TypeQuit
}

// IsServerOnly reports whether only the server may emit the message: presence
// events and history replays.
func (m Message) IsServerOnly() bool {
	return m.IsPresence() || m.Type == TypeHistory
}

func presenceMessage(room, user string, typ MessageType, at time.Time) Message {
	return Message{
		Room:      room,
		Sender:    user,
		Timestamp: at.Format(TimeLayout),
		Type:      typ,
	}
}
