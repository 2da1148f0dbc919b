package model

import (
	"strings"
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a discount code. Codes are case-insensitive and stored upper-case.
// For percentage coupons Value is a percent (0-100); for fixed coupons it is
// an amount in centavos.
type Coupon struct {
	ID         string
	Code       string
	Type       DiscountType
	Value      int64
	Active     bool
	ValidFrom  *time.Time
	ValidUntil *time.Time
	UsageLimit *int // nil = unlimited
	UsageCount int
	CreatedAt  time.Time
}

func NewCoupon(id, code string, typ DiscountType, value int64, validFrom, validUntil *time.Time, usageLimit *int) (*Coupon, error) {
	if id == "" || code == "" || value < 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch typ {
	case DiscountPercentage:
		if value > 100 {
			return nil, domain.ErrInvalidArgument
		}
	case DiscountFixed:
	default:
		return nil, domain.ErrInvalidArgument
	}
	if usageLimit != nil && *usageLimit <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Coupon{
		ID:         id,
		Code:       strings.ToUpper(strings.TrimSpace(code)),
		Type:       typ,
		Value:      value,
		Active:     true,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		UsageLimit: usageLimit,
		CreatedAt:  time.Now(),
	}, nil
}

// Validate checks applicability at the given time. Checks run in a fixed
// order and the first failing one determines the rejection reason.
func (c *Coupon) Validate(now time.Time) error {
	if c == nil || !c.Active {
		return domain.ErrCouponInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return domain.ErrCouponNotStarted
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return domain.ErrCouponExpired
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return domain.ErrCouponExhausted
	}
	return nil
}

// Apply returns the discounted price in centavos, floored at zero.
func (c *Coupon) Apply(priceCents int64) int64 {
	var out int64
	switch c.Type {
	case DiscountPercentage:
		out = priceCents * (100 - c.Value) / 100
	case DiscountFixed:
		out = priceCents - c.Value
	default:
		out = priceCents
	}
	if out < 0 {
		return 0
	}
	return out
}
