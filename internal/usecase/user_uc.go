package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

// UserUseCase upserts users on first contact and resolves identities.
type UserUseCase struct {
	users repository.UserRepository
	log   *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, logger *zerolog.Logger) *UserUseCase {
	l := logger.With().Str("component", "UserUC").Logger()
	return &UserUseCase{users: users, log: &l}
}

// GetOrCreate finds the user by Telegram ID or registers a new one.
func (uc *UserUseCase) GetOrCreate(ctx context.Context, tgID int64, username, firstName string) (*model.User, error) {
	u, err := uc.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err == nil {
		u.Touch()
		u.Username = username
		_ = uc.users.Save(ctx, repository.NoTX, u)
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	u, err = model.NewUser("", tgID, username, firstName)
	if err != nil {
		return nil, err
	}
	if err := uc.users.Save(ctx, repository.NoTX, u); err != nil {
		return nil, err
	}
	uc.log.Info().Int64("tg_id", tgID).Str("user_id", u.ID).Msg("new user registered")
	return u, nil
}

func (uc *UserUseCase) FindByTelegramID(ctx context.Context, tgID int64) (*model.User, error) {
	return uc.users.FindByTelegramID(ctx, repository.NoTX, tgID)
}

func (uc *UserUseCase) FindByID(ctx context.Context, id string) (*model.User, error) {
	return uc.users.FindByID(ctx, repository.NoTX, id)
}
