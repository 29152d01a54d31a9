package dto

import "time"

// MessageView is one history row as the REST surface renders it, with a
// freshly computed signed URL when an attachment is present.
type MessageView struct {
	ID            int64     `json:"id"`
	PropertyID    *int64    `json:"property_id"`
	SenderID      int64     `json:"sender_id"`
	ReceiverID    int64     `json:"receiver_id"`
	Message       *string   `json:"message"`
	FileURL       *string   `json:"file_url"`
	FileName      *string   `json:"file_name"`
	Read          bool      `json:"is_read"`
	CreatedAt     time.Time `json:"created_at"`
	SignedFileURL *string   `json:"signed_file_url,omitempty"`
}

// ConversationSummary is one row of the "my conversations" view.
type ConversationSummary struct {
	OtherID       int64     `json:"other_id"`
	OtherName     string    `json:"other_name"`
	OtherAvatar   string    `json:"other_avatar,omitempty"`
	PropertyID    *int64    `json:"property_id"`
	LastMessage   *string   `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	Unread        int       `json:"unread"`
	Muted         bool      `json:"muted"`
}

type HideRequest struct {
	OtherID    int64  `json:"other_id"`
	PropertyID *int64 `json:"property_id"`
}

type MarkReadRequest struct {
	OtherID    int64  `json:"other_id"`
	PropertyID *int64 `json:"property_id"`
}

type MuteRequest struct {
	OtherID    int64      `json:"other_id"`
	PropertyID *int64     `json:"property_id"`
	Muted      bool       `json:"muted"`
	Until      *time.Time `json:"until"`
}

type MuteResponse struct {
	OtherID    int64  `json:"other_id"`
	PropertyID *int64 `json:"property_id"`
	Muted      bool   `json:"muted"`
}

type RegisterTokenRequest struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type AttachmentResponse struct {
	MessageID     int64  `json:"message_id"`
	SignedFileURL string `json:"signed_file_url"`
}
