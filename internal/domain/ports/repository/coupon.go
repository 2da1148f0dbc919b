package repository

import (
	"context"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

// CouponRepository is the port for discount coupons.
type CouponRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Coupon) error

	// FindByCode matches case-insensitively.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)

	// IncrementUsage bumps usage_count atomically, guarded by the usage
	// limit. Returns false when the coupon is at its limit.
	IncrementUsage(ctx context.Context, tx Tx, id string) (bool, error)

	SetActive(ctx context.Context, tx Tx, id string, active bool) error
	ListAll(ctx context.Context, tx Tx, includeInactive bool) ([]*model.Coupon, error)
}
