package repository

import (
	"context"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

// GroupRepository is the port for configured membership targets.
type GroupRepository interface {
	Save(ctx context.Context, tx Tx, g *model.Group) error
	DeleteByChatID(ctx context.Context, tx Tx, chatID int64) error
	ListAll(ctx context.Context, tx Tx) ([]*model.Group, error)
}
