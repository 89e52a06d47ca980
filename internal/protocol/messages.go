// Package protocol defines the chat websocket payloads.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/amical/internal/store"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeSendMessage  MessageType = "send_message"
	TypePing         MessageType = "ping"
	TypeTurnInserted MessageType = "turn_inserted"
	TypeSendStatus   MessageType = "send_status"
	TypeSystemEvent  MessageType = "system_event"
	TypeErrorEvent   MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// SendMessage asks the server to send content as the user.
type SendMessage struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

// Ping keeps the session alive from the client side.
type Ping struct {
	Type MessageType `json:"type"`
}

// TurnInserted carries a committed turn of the open conversation.
type TurnInserted struct {
	Type MessageType `json:"type"`
	Turn store.Turn  `json:"turn"`
}

// SendStatus reports whether a send is in flight.
type SendStatus struct {
	Type MessageType `json:"type"`
	Busy bool        `json:"busy"`
}

// SystemEvent announces connection lifecycle changes, e.g. "ready".
type SystemEvent struct {
	Type      MessageType    `json:"type"`
	SessionID string         `json:"session_id"`
	Code      string         `json:"code"`
	Detail    string         `json:"detail,omitempty"`
	Persona   *store.Persona `json:"persona,omitempty"`
	History   []store.Turn   `json:"history,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSendMessage:
		var msg SendMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Content) == "" {
			return nil, errors.New("invalid send_message: content is empty")
		}
		return msg, nil
	case TypePing:
		return Ping{Type: TypePing}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
