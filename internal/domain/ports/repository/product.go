package repository

import (
	"context"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

// ProductRepository is the port for immutable product reference data.
type ProductRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Product) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Product, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Product, error)
}
