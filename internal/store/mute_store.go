package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propchat/internal/domain"
)

type MuteStore struct{ db *gorm.DB }

// Get returns the stored setting for the key, if any.
func (m *MuteStore) Get(ctx context.Context, owner, other int64, scope domain.Scope) (domain.MuteSetting, bool, error) {
	var setting domain.MuteSetting
	err := m.db.WithContext(ctx).
		First(&setting, "owner_id = ? AND other_id = ? AND property_id = ?", owner, other, scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.MuteSetting{}, false, nil
	}
	if err != nil {
		return domain.MuteSetting{}, false, translate(err)
	}
	return setting, true, nil
}

// Effective computes the mute flag at read time. An absent row means not
// muted; an expired muted_until means not muted, without mutating the row.
func (m *MuteStore) Effective(ctx context.Context, owner, other int64, scope domain.Scope, now time.Time) (bool, error) {
	setting, ok, err := m.Get(ctx, owner, other, scope)
	if err != nil || !ok {
		return false, err
	}
	return setting.EffectiveAt(now), nil
}

// Set upserts the setting for the key. Last write wins.
func (m *MuteStore) Set(ctx context.Context, owner, other int64, scope domain.Scope, muted bool, until *time.Time) error {
	if owner <= 0 || other <= 0 {
		return domain.ErrValidation
	}
	setting := domain.MuteSetting{
		OwnerID:    owner,
		OtherID:    other,
		Scope:      scope,
		Muted:      muted,
		MutedUntil: until,
		UpdatedAt:  time.Now().UTC(),
	}
	err := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}, {Name: "other_id"}, {Name: "property_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"muted", "muted_until", "updated_at"}),
		}).
		Create(&setting).Error
	return translate(err)
}

// ListForOwner returns every stored setting belonging to owner. The
// summarizer resolves effective flags from it in one pass.
func (m *MuteStore) ListForOwner(ctx context.Context, owner int64) ([]domain.MuteSetting, error) {
	var settings []domain.MuteSetting
	if err := m.db.WithContext(ctx).Where("owner_id = ?", owner).Find(&settings).Error; err != nil {
		return nil, translate(err)
	}
	return settings, nil
}
