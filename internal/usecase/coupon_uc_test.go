package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

func newCouponUC(coupons *memCouponRepo) *CouponUseCase {
	uc := NewCouponUseCase(coupons, newTestLogger())
	uc.now = fixedNow
	return uc
}

func seedCoupon(t *testing.T, repo *memCouponRepo, c *model.Coupon) {
	t.Helper()
	if err := repo.Save(context.Background(), nil, c); err != nil {
		t.Fatal(err)
	}
}

func TestCouponUseCase_ValidateCode(t *testing.T) {
	ctx := context.Background()

	t.Run("matches case-insensitively", func(t *testing.T) {
		repo := newMemCouponRepo()
		c, _ := model.NewCoupon("c-1", "promo10", model.DiscountPercentage, 10, nil, nil, nil)
		seedCoupon(t, repo, c)
		uc := newCouponUC(repo)

		got, err := uc.ValidateCode(ctx, "pRoMo10")
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if got.Code != "PROMO10" {
			t.Errorf("expected canonical code PROMO10, got %s", got.Code)
		}
	})

	t.Run("missing code rejects as inactive", func(t *testing.T) {
		uc := newCouponUC(newMemCouponRepo())
		if _, err := uc.ValidateCode(ctx, "NOPE"); !errors.Is(err, domain.ErrCouponInactive) {
			t.Errorf("expected ErrCouponInactive, got %v", err)
		}
	})

	t.Run("rejection reasons follow the fixed check order", func(t *testing.T) {
		limit := 5
		notYet := fixedNow().Add(24 * time.Hour)
		past := fixedNow().Add(-24 * time.Hour)

		cases := []struct {
			name   string
			mutate func(c *model.Coupon)
			want   error
		}{
			{"inactive", func(c *model.Coupon) { c.Active = false }, domain.ErrCouponInactive},
			{"not started", func(c *model.Coupon) { c.ValidFrom = &notYet }, domain.ErrCouponNotStarted},
			{"expired", func(c *model.Coupon) { c.ValidUntil = &past }, domain.ErrCouponExpired},
			{"exhausted", func(c *model.Coupon) { c.UsageLimit = &limit; c.UsageCount = 5 }, domain.ErrCouponExhausted},
			{
				// Inactive must win even when the coupon is also expired.
				"inactive beats expired",
				func(c *model.Coupon) { c.Active = false; c.ValidUntil = &past },
				domain.ErrCouponInactive,
			},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				repo := newMemCouponRepo()
				c, _ := model.NewCoupon("c-1", "CODE", model.DiscountPercentage, 10, nil, nil, nil)
				tc.mutate(c)
				seedCoupon(t, repo, c)
				uc := newCouponUC(repo)

				if _, err := uc.ValidateCode(ctx, "CODE"); !errors.Is(err, tc.want) {
					t.Errorf("expected %v, got %v", tc.want, err)
				}
			})
		}
	})

	t.Run("at the usage boundary the last slot is still accepted", func(t *testing.T) {
		limit := 5
		repo := newMemCouponRepo()
		c, _ := model.NewCoupon("c-1", "LAST", model.DiscountPercentage, 10, nil, nil, &limit)
		c.UsageCount = 4
		seedCoupon(t, repo, c)
		uc := newCouponUC(repo)

		if _, err := uc.ValidateCode(ctx, "LAST"); err != nil {
			t.Errorf("count 4 of 5 must validate, got %v", err)
		}
	})
}

func TestCoupon_Apply(t *testing.T) {
	cases := []struct {
		name  string
		typ   model.DiscountType
		value int64
		price int64
		want  int64
	}{
		{"20 percent off 10000", model.DiscountPercentage, 20, 10000, 8000},
		{"100 percent off", model.DiscountPercentage, 100, 4990, 0},
		{"fixed 1500 off 4990", model.DiscountFixed, 1500, 4990, 3490},
		{"fixed larger than price floors at zero", model.DiscountFixed, 9999, 4990, 0},
		{"percentage rounds down", model.DiscountPercentage, 33, 100, 67},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := model.NewCoupon("c-1", "X", tc.typ, tc.value, nil, nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := c.Apply(tc.price); got != tc.want {
				t.Errorf("Apply(%d) = %d, want %d", tc.price, got, tc.want)
			}
		})
	}
}
