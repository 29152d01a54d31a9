package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Message is one entry in the append-only conversation log. Everything but
// the Read and Deleted flags is immutable after creation; rows are never
// physically removed.
type Message struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Scope          Scope     `gorm:"column:property_id;not null;default:0;index:idx_messages_pair,priority:3"`
	SenderID       int64     `gorm:"not null;index:idx_messages_pair,priority:1"`
	ReceiverID     int64     `gorm:"not null;index:idx_messages_pair,priority:2"`
	Body           *string   `gorm:"type:text"`
	AttachmentURL  *string   `gorm:"type:text"`
	AttachmentName *string   `gorm:"type:text"`
	Read           bool      `gorm:"not null;default:false"`
	Deleted        bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (Message) TableName() string { return "messages" }

// IsParticipant reports whether userID is the sender or the receiver.
func (m Message) IsParticipant(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// MuteSetting is the owner's notification preference for one conversation.
// One logical row per (owner, other, scope) key, last write wins.
type MuteSetting struct {
	OwnerID    int64      `gorm:"primaryKey;autoIncrement:false"`
	OtherID    int64      `gorm:"primaryKey;autoIncrement:false"`
	Scope      Scope      `gorm:"column:property_id;primaryKey;autoIncrement:false"`
	Muted      bool       `gorm:"not null;default:false"`
	MutedUntil *time.Time
	UpdatedAt  time.Time `gorm:"not null"`
}

func (MuteSetting) TableName() string { return "mute_settings" }

// EffectiveAt computes the mute flag lazily: an expiry in the past means
// not muted, without touching the stored row.
func (m MuteSetting) EffectiveAt(now time.Time) bool {
	if !m.Muted {
		return false
	}
	return m.MutedUntil == nil || m.MutedUntil.After(now)
}

// HiddenChat marks a conversation as hidden from the owner's summary list.
// Presence of the row is the flag; an inbound message deletes it.
type HiddenChat struct {
	OwnerID  int64     `gorm:"primaryKey;autoIncrement:false"`
	OtherID  int64     `gorm:"primaryKey;autoIncrement:false"`
	Scope    Scope     `gorm:"column:property_id;primaryKey;autoIncrement:false"`
	HiddenAt time.Time `gorm:"not null"`
}

func (HiddenChat) TableName() string { return "hidden_chats" }

// PushToken is one device's notification address. Exactly one active token
// per (user, device); registration upserts in place.
type PushToken struct {
	UserID     int64     `gorm:"primaryKey;autoIncrement:false"`
	DeviceID   string    `gorm:"primaryKey;type:text"`
	Token      string    `gorm:"not null;type:text"`
	Platform   string    `gorm:"not null;type:text"`
	Active     bool      `gorm:"not null;default:true;index:idx_push_tokens_active"`
	LastSeenAt time.Time `gorm:"not null"`
}

func (PushToken) TableName() string { return "push_tokens" }

// PushReceipt is the audit trail of provider delivery tickets. Written
// best-effort by the fanout path, never read on the hot path.
type PushReceipt struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	UserID    int64          `gorm:"not null;index"`
	Token     string         `gorm:"not null;type:text"`
	Status    string         `gorm:"not null;type:text"`
	Details   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (PushReceipt) TableName() string { return "push_receipts" }

// User is the read-side slice of the marketplace's user record that the
// conversation summary needs. The marketplace owns the full table.
type User struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"not null;type:text"`
	AvatarURL string `gorm:"type:text"`
}

func (User) TableName() string { return "users" }
