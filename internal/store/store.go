package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"propchat/internal/domain"
)

type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(
		&domain.Message{},
		&domain.MuteSetting{},
		&domain.HiddenChat{},
		&domain.PushToken{},
		&domain.PushReceipt{},
		&domain.User{},
	)
}

func (s *Store) Messages() *MessageStore     { return &MessageStore{db: s.DB} }
func (s *Store) Mutes() *MuteStore           { return &MuteStore{db: s.DB} }
func (s *Store) Hidden() *HiddenStore        { return &HiddenStore{db: s.DB} }
func (s *Store) PushTokens() *PushTokenStore { return &PushTokenStore{db: s.DB} }
func (s *Store) Users() *UserStore           { return &UserStore{db: s.DB} }

const pgUniqueViolation = "23505"

// translate maps driver-level failures onto the domain sentinels callers
// branch on.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return domain.ErrConflict
	}
	return err
}
