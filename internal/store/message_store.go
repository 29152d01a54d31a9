package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"propchat/internal/domain"
)

type MessageStore struct{ db *gorm.DB }

// AppendInput carries the immutable fields of a new message. Body and
// AttachmentURL may not both be empty.
type AppendInput struct {
	SenderID       int64
	ReceiverID     int64
	Scope          domain.Scope
	Body           *string
	AttachmentURL  *string
	AttachmentName *string
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Append persists a new message and assigns its id and creation time. The
// row starts unread and visible.
func (m *MessageStore) Append(ctx context.Context, in AppendInput) (domain.Message, error) {
	body := trimmed(in.Body)
	fileURL := trimmed(in.AttachmentURL)
	if in.SenderID <= 0 || in.ReceiverID <= 0 {
		return domain.Message{}, domain.ErrValidation
	}
	if body == nil && fileURL == nil {
		return domain.Message{}, domain.ErrValidation
	}
	msg := domain.Message{
		Scope:          in.Scope,
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		Body:           body,
		AttachmentURL:  fileURL,
		AttachmentName: trimmed(in.AttachmentName),
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return domain.Message{}, translate(err)
	}
	return msg, nil
}

// History returns the non-deleted messages between the pair in the given
// scope, ascending by creation time. Pure query, restartable.
func (m *MessageStore) History(ctx context.Context, viewer, other int64, scope domain.Scope) ([]domain.Message, error) {
	var msgs []domain.Message
	err := m.db.WithContext(ctx).
		Where("property_id = ? AND deleted = ?", scope, false).
		Where(
			m.db.Where("sender_id = ? AND receiver_id = ?", viewer, other).
				Or("sender_id = ? AND receiver_id = ?", other, viewer),
		).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, translate(err)
	}
	return msgs, nil
}

// Get fetches a single message by id, deleted or not.
func (m *MessageStore) Get(ctx context.Context, id int64) (domain.Message, error) {
	var msg domain.Message
	if err := m.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return domain.Message{}, translate(err)
	}
	return msg, nil
}

// MarkRead flags the receiver's unread inbound messages from sender in the
// given scope as read. Idempotent: repeated calls match no rows.
func (m *MessageStore) MarkRead(ctx context.Context, receiver, sender int64, scope domain.Scope) (int64, error) {
	tx := m.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND property_id = ?", receiver, sender, scope).
		Where("read = ? AND deleted = ?", false, false).
		Update("read", true)
	return tx.RowsAffected, translate(tx.Error)
}

// SoftDelete flags a message deleted on behalf of requester. Only a
// participant may delete; deletion is terminal and repeatable. The message
// is returned so callers can fan the deletion out to both participants.
func (m *MessageStore) SoftDelete(ctx context.Context, messageID, requester int64) (domain.Message, error) {
	msg, err := m.Get(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if !msg.IsParticipant(requester) {
		return domain.Message{}, domain.ErrUnauthorized
	}
	if msg.Deleted {
		return msg, nil
	}
	err = m.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", msg.ID).
		Update("deleted", true).Error
	if err != nil {
		return domain.Message{}, translate(err)
	}
	msg.Deleted = true
	return msg, nil
}

// ConversationFeed returns the viewer's non-deleted messages across all
// conversations, newest first. The summarizer aggregates it in memory; the
// summary itself is computed, never stored.
func (m *MessageStore) ConversationFeed(ctx context.Context, viewer int64) ([]domain.Message, error) {
	var msgs []domain.Message
	err := m.db.WithContext(ctx).
		Where("deleted = ?", false).
		Where(
			m.db.Where("sender_id = ?", viewer).Or("receiver_id = ?", viewer),
		).
		Order("created_at desc, id desc").
		Find(&msgs).Error
	if err != nil {
		return nil, translate(err)
	}
	return msgs, nil
}
