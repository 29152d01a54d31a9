package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propchat/internal/domain"
)

type PushTokenStore struct{ db *gorm.DB }

// Register records device's token for user and makes it the sole active
// delivery target: all of the user's other active tokens are deactivated
// first ("last registered device wins").
func (p *PushTokenStore) Register(ctx context.Context, user int64, device, token, platform string) error {
	device = strings.TrimSpace(device)
	token = strings.TrimSpace(token)
	if user <= 0 || device == "" || token == "" {
		return domain.ErrValidation
	}
	now := time.Now().UTC()
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.PushToken{}).
			Where("user_id = ? AND device_id <> ? AND active = ?", user, device, true).
			Update("active", false).Error; err != nil {
			return err
		}
		row := domain.PushToken{
			UserID:     user,
			DeviceID:   device,
			Token:      token,
			Platform:   platform,
			Active:     true,
			LastSeenAt: now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "platform", "active", "last_seen_at"}),
		}).Create(&row).Error
	})
	return translate(err)
}

// Deactivate marks the (user, device) token inactive. Idempotent.
func (p *PushTokenStore) Deactivate(ctx context.Context, user int64, device string) error {
	err := p.db.WithContext(ctx).
		Model(&domain.PushToken{}).
		Where("user_id = ? AND device_id = ?", user, device).
		Update("active", false).Error
	return translate(err)
}

// DeactivateToken retires a token by value, across whichever devices carry
// it. Used when the provider reports the device permanently gone.
func (p *PushTokenStore) DeactivateToken(ctx context.Context, token string) error {
	err := p.db.WithContext(ctx).
		Model(&domain.PushToken{}).
		Where("token = ?", token).
		Update("active", false).Error
	return translate(err)
}

// ActiveTokens returns the user's currently active, non-empty tokens.
func (p *PushTokenStore) ActiveTokens(ctx context.Context, user int64) ([]string, error) {
	var rows []domain.PushToken
	err := p.db.WithContext(ctx).
		Where("user_id = ? AND active = ? AND token <> ''", user, true).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	tokens := make([]string, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, row.Token)
	}
	return tokens, nil
}

// Touch refreshes last_seen_at for every active token of the user.
func (p *PushTokenStore) Touch(ctx context.Context, user int64, at time.Time) error {
	err := p.db.WithContext(ctx).
		Model(&domain.PushToken{}).
		Where("user_id = ? AND active = ?", user, true).
		Update("last_seen_at", at).Error
	return translate(err)
}

// RecordReceipt appends a provider delivery ticket to the audit log.
func (p *PushTokenStore) RecordReceipt(ctx context.Context, receipt *domain.PushReceipt) error {
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	return translate(p.db.WithContext(ctx).Create(receipt).Error)
}
