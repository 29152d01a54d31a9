package service

import (
	"context"
	"log/slog"
	"time"

	"propchat/internal/domain"
	"propchat/internal/dto"
	"propchat/internal/events"
	"propchat/internal/observability/metrics"
	"propchat/internal/store"
)

// Broadcaster delivers an event to every live connection of a user.
type Broadcaster interface {
	Broadcast(userID int64, event string, data any) int
}

// Notifier is the best-effort push fanout. Implementations must never
// fail the caller; the bool only says whether the request was handled.
type Notifier interface {
	Notify(ctx context.Context, userID int64, title, body string, data map[string]any) bool
}

// URLSigner resolves a stored attachment reference to a deliverable URL.
type URLSigner interface {
	DeliveryURL(storedRef, filename string) (string, bool)
}

// ChatService orchestrates the messaging pipeline. Persistence is the
// primary concern and must succeed before anything else happens; the side
// effects that follow (reveal, signing, broadcast, mute check, push) run in
// a fixed order and each degrades independently.
type ChatService struct {
	store  *store.Store
	rooms  Broadcaster
	signer URLSigner
	push   Notifier
	log    *slog.Logger
	now    func() time.Time
}

func NewChatService(st *store.Store, rooms Broadcaster, signer URLSigner, notifier Notifier, log *slog.Logger) *ChatService {
	if log == nil {
		log = slog.Default()
	}
	return &ChatService{
		store:  st,
		rooms:  rooms,
		signer: signer,
		push:   notifier,
		log:    log,
		now:    time.Now,
	}
}

type SendInput struct {
	SenderID   int64
	ReceiverID int64
	Scope      domain.Scope
	Body       *string
	FileURL    *string
	FileName   *string
}

// Send runs the full pipeline: validate, persist, reveal the receiver's
// hidden marker, sign the attachment, broadcast to both rooms, check the
// receiver's mute state and fan out a push. Everything after persistence
// is log-and-continue; a dead push provider never loses a message.
func (s *ChatService) Send(ctx context.Context, in SendInput) (events.ReceiveMessage, error) {
	msg, err := s.store.Messages().Append(ctx, store.AppendInput{
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		Scope:          in.Scope,
		Body:           in.Body,
		AttachmentURL:  in.FileURL,
		AttachmentName: in.FileName,
	})
	if err != nil {
		return events.ReceiveMessage{}, err
	}
	metrics.MessagesStoredTotal.WithLabelValues().Inc()

	// An inbound message makes the conversation visible to the receiver
	// again, whether or not they ever see the live broadcast.
	if err := s.store.Hidden().Reveal(ctx, msg.ReceiverID, msg.SenderID, msg.Scope); err != nil {
		s.log.Error("chat: reveal failed", "message_id", msg.ID, "error", err)
	}

	ev := s.eventFor(msg)

	s.rooms.Broadcast(msg.SenderID, events.EventReceiveMessage, ev)
	s.rooms.Broadcast(msg.ReceiverID, events.EventReceiveMessage, ev)

	s.notifyReceiver(ctx, msg)

	return ev, nil
}

func (s *ChatService) eventFor(msg domain.Message) events.ReceiveMessage {
	ev := events.ReceiveMessage{
		ID:         msg.ID,
		PropertyID: msg.Scope.PropertyRef(),
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Message:    msg.Body,
		FileURL:    msg.AttachmentURL,
		FileName:   msg.AttachmentName,
		CreatedAt:  msg.CreatedAt,
	}
	ev.SignedFileURL = s.signedFor(msg)
	return ev
}

// signedFor computes a delivery URL for the message's attachment, or nil
// when there is none or the reference does not parse. A broken reference
// degrades to "no URL", never to a failed send.
func (s *ChatService) signedFor(msg domain.Message) *string {
	if msg.AttachmentURL == nil {
		return nil
	}
	name := ""
	if msg.AttachmentName != nil {
		name = *msg.AttachmentName
	}
	signed, ok := s.signer.DeliveryURL(*msg.AttachmentURL, name)
	if !ok {
		s.log.Warn("chat: unparsable attachment reference", "message_id", msg.ID)
		return nil
	}
	return &signed
}

func (s *ChatService) notifyReceiver(ctx context.Context, msg domain.Message) {
	muted, err := s.store.Mutes().Effective(ctx, msg.ReceiverID, msg.SenderID, msg.Scope, s.now())
	if err != nil {
		s.log.Error("chat: mute lookup failed, skipping push", "message_id", msg.ID, "error", err)
		return
	}
	if muted {
		return
	}

	title, err := s.store.Users().DisplayName(ctx, msg.SenderID)
	if err != nil || title == "" {
		title = "New message"
	}
	body := "Sent you a message"
	if msg.Body != nil {
		body = *msg.Body
	} else if msg.AttachmentName != nil {
		body = *msg.AttachmentName
	}
	data := map[string]any{
		"message_id":  msg.ID,
		"sender_id":   msg.SenderID,
		"property_id": msg.Scope.PropertyRef(),
	}
	s.push.Notify(ctx, msg.ReceiverID, title, body, data)
}

// History returns the conversation ascending by time, each attachment row
// annotated with a fresh signed URL, then marks the viewer's inbound
// unread messages read. The mark-read is deliberately after the fetch; a
// brief stale "unread" view is acceptable.
func (s *ChatService) History(ctx context.Context, viewer, other int64, scope domain.Scope) ([]dto.MessageView, error) {
	if viewer <= 0 || other <= 0 {
		return nil, domain.ErrValidation
	}
	msgs, err := s.store.Messages().History(ctx, viewer, other, scope)
	if err != nil {
		return nil, err
	}
	views := make([]dto.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, dto.MessageView{
			ID:            msg.ID,
			PropertyID:    msg.Scope.PropertyRef(),
			SenderID:      msg.SenderID,
			ReceiverID:    msg.ReceiverID,
			Message:       msg.Body,
			FileURL:       msg.AttachmentURL,
			FileName:      msg.AttachmentName,
			Read:          msg.Read,
			CreatedAt:     msg.CreatedAt,
			SignedFileURL: s.signedFor(msg),
		})
	}
	if _, err := s.store.Messages().MarkRead(ctx, viewer, other, scope); err != nil {
		s.log.Error("chat: mark read after history failed", "viewer", viewer, "other", other, "error", err)
	}
	return views, nil
}

// MarkRead is the explicit read acknowledgment. Idempotent.
func (s *ChatService) MarkRead(ctx context.Context, viewer, other int64, scope domain.Scope) error {
	if viewer <= 0 || other <= 0 {
		return domain.ErrValidation
	}
	_, err := s.store.Messages().MarkRead(ctx, viewer, other, scope)
	return err
}

// Delete soft-deletes a message on behalf of requester and tells both
// participants' rooms. Deletion is terminal; repeating it is a no-op.
func (s *ChatService) Delete(ctx context.Context, messageID, requester int64) error {
	msg, err := s.store.Messages().SoftDelete(ctx, messageID, requester)
	if err != nil {
		return err
	}
	metrics.MessagesDeletedTotal.WithLabelValues().Inc()

	ev := events.MessageDeleted{MessageID: msg.ID}
	s.rooms.Broadcast(msg.SenderID, events.EventMessageDeleted, ev)
	s.rooms.Broadcast(msg.ReceiverID, events.EventMessageDeleted, ev)
	return nil
}

// Hide removes the conversation from the caller's summary list only; the
// other participant's view is untouched.
func (s *ChatService) Hide(ctx context.Context, owner, other int64, scope domain.Scope) error {
	return s.store.Hidden().Hide(ctx, owner, other, scope)
}

// MuteState returns the effective mute flag, computed lazily.
func (s *ChatService) MuteState(ctx context.Context, owner, other int64, scope domain.Scope) (bool, error) {
	if owner <= 0 || other <= 0 {
		return false, domain.ErrValidation
	}
	return s.store.Mutes().Effective(ctx, owner, other, scope, s.now())
}

// SetMute upserts the caller's mute preference. Last write wins.
func (s *ChatService) SetMute(ctx context.Context, owner, other int64, scope domain.Scope, muted bool, until *time.Time) error {
	return s.store.Mutes().Set(ctx, owner, other, scope, muted, until)
}

// RegisterDevice records the caller's push token, deactivating the
// caller's other devices (last registered device wins).
func (s *ChatService) RegisterDevice(ctx context.Context, user int64, device, token, platform string) error {
	return s.store.PushTokens().Register(ctx, user, device, token, platform)
}

// DeregisterDevice retires the device's token, e.g. on logout. Idempotent.
func (s *ChatService) DeregisterDevice(ctx context.Context, user int64, device string) error {
	return s.store.PushTokens().Deactivate(ctx, user, device)
}

// AttachmentURL resolves one message's attachment to a signed delivery
// URL. Only participants may resolve; a missing or unparsable attachment
// is ErrNotFound.
func (s *ChatService) AttachmentURL(ctx context.Context, messageID, requester int64) (string, error) {
	msg, err := s.store.Messages().Get(ctx, messageID)
	if err != nil {
		return "", err
	}
	if !msg.IsParticipant(requester) {
		return "", domain.ErrUnauthorized
	}
	signed := s.signedFor(msg)
	if signed == nil {
		return "", domain.ErrNotFound
	}
	return *signed, nil
}
