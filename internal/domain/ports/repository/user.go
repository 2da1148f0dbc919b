package repository

import (
	"context"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

// UserRepository is the port for platform users.
type UserRepository interface {
	// Save upserts by Telegram ID.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	FindByReferralCode(ctx context.Context, tx Tx, code string) (*model.User, error)
	SetReferralCode(ctx context.Context, tx Tx, id, code string) error
	CountUsers(ctx context.Context, tx Tx) (int, error)
	// ListTelegramIDs returns the chat IDs of every registered user,
	// for bulk delivery paths.
	ListTelegramIDs(ctx context.Context, tx Tx) ([]int64, error)
}
