package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

// CouponUseCase validates coupon applicability and manages coupon admin
// operations. Usage counting happens atomically with pending-subscription
// creation in the payment flow, not here.
type CouponUseCase struct {
	coupons repository.CouponRepository
	log     *zerolog.Logger

	now func() time.Time
}

func NewCouponUseCase(coupons repository.CouponRepository, logger *zerolog.Logger) *CouponUseCase {
	l := logger.With().Str("component", "CouponUC").Logger()
	return &CouponUseCase{coupons: coupons, log: &l, now: time.Now}
}

// ValidateCode resolves a coupon by code and checks applicability now.
// A missing coupon rejects with the same reason as an inactive one.
func (uc *CouponUseCase) ValidateCode(ctx context.Context, code string) (*model.Coupon, error) {
	c, err := uc.coupons.FindByCode(ctx, repository.NoTX, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrCouponInactive
		}
		return nil, err
	}
	if err := c.Validate(uc.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// Create registers a new coupon (admin operation).
func (uc *CouponUseCase) Create(ctx context.Context, code string, typ model.DiscountType, value int64, validFrom, validUntil *time.Time, usageLimit *int) (*model.Coupon, error) {
	c, err := model.NewCoupon(uuid.NewString(), code, typ, value, validFrom, validUntil, usageLimit)
	if err != nil {
		return nil, err
	}
	if err := uc.coupons.Save(ctx, repository.NoTX, c); err != nil {
		return nil, err
	}
	uc.log.Info().Str("code", c.Code).Msg("coupon created")
	return c, nil
}

// SetActive deactivates or reactivates a coupon by code (admin operation).
func (uc *CouponUseCase) SetActive(ctx context.Context, code string, active bool) error {
	c, err := uc.coupons.FindByCode(ctx, repository.NoTX, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return err
	}
	return uc.coupons.SetActive(ctx, repository.NoTX, c.ID, active)
}

// List returns coupons for the admin surface.
func (uc *CouponUseCase) List(ctx context.Context, includeInactive bool) ([]*model.Coupon, error) {
	return uc.coupons.ListAll(ctx, repository.NoTX, includeInactive)
}
