package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propchat/internal/domain"
)

type HiddenStore struct{ db *gorm.DB }

// Hide upserts the hidden marker for owner's view of the conversation.
// Repeated hides refresh the timestamp.
func (h *HiddenStore) Hide(ctx context.Context, owner, other int64, scope domain.Scope) error {
	if owner <= 0 || other <= 0 {
		return domain.ErrValidation
	}
	marker := domain.HiddenChat{
		OwnerID:  owner,
		OtherID:  other,
		Scope:    scope,
		HiddenAt: time.Now().UTC(),
	}
	err := h.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "other_id"}, {Name: "property_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"hidden_at"}),
		}).
		Create(&marker).Error
	return translate(err)
}

// Reveal deletes the marker. Revealing an already visible conversation is
// a no-op; the reveal is one-directional, per viewer.
func (h *HiddenStore) Reveal(ctx context.Context, owner, other int64, scope domain.Scope) error {
	err := h.db.WithContext(ctx).
		Delete(&domain.HiddenChat{}, "owner_id = ? AND other_id = ? AND property_id = ?", owner, other, scope).Error
	return translate(err)
}

func (h *HiddenStore) IsHidden(ctx context.Context, owner, other int64, scope domain.Scope) (bool, error) {
	var marker domain.HiddenChat
	err := h.db.WithContext(ctx).
		First(&marker, "owner_id = ? AND other_id = ? AND property_id = ?", owner, other, scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	return true, nil
}

// ListForOwner returns owner's hidden markers for summary filtering.
func (h *HiddenStore) ListForOwner(ctx context.Context, owner int64) ([]domain.HiddenChat, error) {
	var markers []domain.HiddenChat
	if err := h.db.WithContext(ctx).Where("owner_id = ?", owner).Find(&markers).Error; err != nil {
		return nil, translate(err)
	}
	return markers, nil
}
