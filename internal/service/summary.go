package service

import (
	"context"

	"propchat/internal/domain"
	"propchat/internal/dto"
)

type conversationKey struct {
	other int64
	scope domain.Scope
}

// Summaries computes the viewer's conversation list: one row per distinct
// (other user, scope) pair, newest first, with unread counts, display
// identity and the lazily computed mute flag. Conversations the viewer has
// hidden are excluded until a new inbound message reveals them.
func (s *ChatService) Summaries(ctx context.Context, viewer int64) ([]dto.ConversationSummary, error) {
	if viewer <= 0 {
		return nil, domain.ErrValidation
	}
	feed, err := s.store.Messages().ConversationFeed(ctx, viewer)
	if err != nil {
		return nil, err
	}

	hiddenRows, err := s.store.Hidden().ListForOwner(ctx, viewer)
	if err != nil {
		return nil, err
	}
	hidden := make(map[conversationKey]struct{}, len(hiddenRows))
	for _, h := range hiddenRows {
		hidden[conversationKey{other: h.OtherID, scope: h.Scope}] = struct{}{}
	}

	muteRows, err := s.store.Mutes().ListForOwner(ctx, viewer)
	if err != nil {
		return nil, err
	}
	now := s.now()
	muted := make(map[conversationKey]bool, len(muteRows))
	for _, m := range muteRows {
		muted[conversationKey{other: m.OtherID, scope: m.Scope}] = m.EffectiveAt(now)
	}

	// The feed is newest-first, so the first row seen for a key is the
	// conversation's last message and slice order is already the final
	// ordering.
	var order []conversationKey
	rows := make(map[conversationKey]*dto.ConversationSummary)
	for _, msg := range feed {
		other := msg.SenderID
		if other == viewer {
			other = msg.ReceiverID
		}
		key := conversationKey{other: other, scope: msg.Scope}
		if _, isHidden := hidden[key]; isHidden {
			continue
		}
		row, ok := rows[key]
		if !ok {
			row = &dto.ConversationSummary{
				OtherID:       other,
				PropertyID:    msg.Scope.PropertyRef(),
				LastMessage:   msg.Body,
				LastMessageAt: msg.CreatedAt,
				Muted:         muted[key],
			}
			rows[key] = row
			order = append(order, key)
		}
		if msg.ReceiverID == viewer && !msg.Read {
			row.Unread++
		}
	}

	others := make([]int64, 0, len(order))
	for _, key := range order {
		others = append(others, key.other)
	}
	names, err := s.store.Users().DisplayNames(ctx, others)
	if err != nil {
		return nil, err
	}

	out := make([]dto.ConversationSummary, 0, len(order))
	for _, key := range order {
		row := rows[key]
		if user, ok := names[key.other]; ok {
			row.OtherName = user.Name
			row.OtherAvatar = user.AvatarURL
		}
		out = append(out, *row)
	}
	return out, nil
}
