package repository

import (
	"context"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

// ChargeRepository is the port for payment correlation records.
type ChargeRepository interface {
	Save(ctx context.Context, tx Tx, c *model.PaymentCharge) error
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.PaymentCharge, error)
}
