package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

var _ repository.ChargeRepository = (*chargeRepo)(nil)

type chargeRepo struct {
	pool *pgxpool.Pool
}

func NewChargeRepo(pool *pgxpool.Pool) *chargeRepo {
	return &chargeRepo{pool: pool}
}

func (r *chargeRepo) Save(ctx context.Context, tx repository.Tx, c *model.PaymentCharge) error {
	const q = `
INSERT INTO payment_charges (payment_id, user_id, product_id, coupon_id, referrer_id, referral_code, amount_cents, provider, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`

	_, err := execSQL(ctx, r.pool, tx, q,
		c.PaymentID, c.UserID, c.ProductID, nullStr(c.CouponID), nullStr(c.ReferrerID), nullStr(c.ReferralCode),
		c.AmountCents, c.Provider, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *chargeRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.PaymentCharge, error) {
	const q = `
SELECT payment_id, user_id, product_id, coupon_id, referrer_id, referral_code, amount_cents, provider, created_at
  FROM payment_charges
 WHERE payment_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return nil, err
	}
	c := &model.PaymentCharge{}
	var couponID, referrerID, refCode *string
	if err := row.Scan(&c.PaymentID, &c.UserID, &c.ProductID, &couponID, &referrerID, &refCode,
		&c.AmountCents, &c.Provider, &c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if couponID != nil {
		c.CouponID = *couponID
	}
	if referrerID != nil {
		c.ReferrerID = *referrerID
	}
	if refCode != nil {
		c.ReferralCode = *refCode
	}
	return c, nil
}
