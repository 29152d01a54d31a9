package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"propchat/internal/domain"
)

type UserStore struct{ db *gorm.DB }

// DisplayName resolves a user's display identity. Unknown users get an
// empty name rather than an error; the marketplace owns the user table and
// a chat row may outlive the account.
func (u *UserStore) DisplayName(ctx context.Context, id int64) (string, error) {
	var user domain.User
	err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", translate(err)
	}
	return user.Name, nil
}

// DisplayNames resolves several users in one query.
func (u *UserStore) DisplayNames(ctx context.Context, ids []int64) (map[int64]domain.User, error) {
	out := make(map[int64]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []domain.User
	if err := u.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	for _, user := range users {
		out[user.ID] = user
	}
	return out, nil
}
