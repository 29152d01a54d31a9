// Package events defines the JSON payloads of the persistent-connection
// protocol. Every frame on the wire is an Envelope; Data carries one of
// the typed payloads below.
package events

import (
	"encoding/json"
	"time"
)

const (
	EventJoin           = "join"
	EventSendMessage    = "send_message"
	EventDeleteMessage  = "delete_message"
	EventReceiveMessage = "receive_message"
	EventMessageDeleted = "message_deleted"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound payloads.

type Join struct {
	UserID int64 `json:"user_id"`
}

type SendMessage struct {
	SenderID   int64   `json:"sender_id"`
	ReceiverID int64   `json:"receiver_id"`
	PropertyID *int64  `json:"property_id"`
	Message    *string `json:"message"`
	FileURL    *string `json:"file_url"`
	FileName   *string `json:"file_name"`
}

type DeleteMessage struct {
	MessageID int64 `json:"message_id"`
	UserID    int64 `json:"user_id"`
}

// Outbound payloads.

type ReceiveMessage struct {
	ID            int64     `json:"id"`
	PropertyID    *int64    `json:"property_id"`
	SenderID      int64     `json:"sender_id"`
	ReceiverID    int64     `json:"receiver_id"`
	Message       *string   `json:"message"`
	FileURL       *string   `json:"file_url"`
	FileName      *string   `json:"file_name"`
	CreatedAt     time.Time `json:"created_at"`
	SignedFileURL *string   `json:"signed_file_url,omitempty"`
}

type MessageDeleted struct {
	MessageID int64 `json:"message_id"`
}
