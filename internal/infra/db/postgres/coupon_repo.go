package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

var _ repository.CouponRepository = (*couponRepo)(nil)

type couponRepo struct {
	pool *pgxpool.Pool
}

func NewCouponRepo(pool *pgxpool.Pool) *couponRepo {
	return &couponRepo{pool: pool}
}

const couponCols = `id, code, discount_type, discount_value, active, valid_from, valid_until, usage_limit, usage_count, created_at`

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	const q = `
INSERT INTO coupons (` + couponCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  discount_type=$3, discount_value=$4, active=$5, valid_from=$6, valid_until=$7, usage_limit=$8;`

	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.Code, string(c.Type), c.Value, c.Active, c.ValidFrom, c.ValidUntil, c.UsageLimit, c.UsageCount, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *couponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	const q = `SELECT ` + couponCols + ` FROM coupons WHERE code=UPPER($1);`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	return scanCoupon(row)
}

// IncrementUsage bumps usage_count only while under the limit; the guarded
// UPDATE keeps the check-and-bump atomic under concurrent purchases.
func (r *couponRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
UPDATE coupons
   SET usage_count = usage_count + 1
 WHERE id=$1 AND (usage_limit IS NULL OR usage_count < usage_limit);`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *couponRepo) SetActive(ctx context.Context, tx repository.Tx, id string, active bool) error {
	const q = `UPDATE coupons SET active=$2 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, active)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *couponRepo) ListAll(ctx context.Context, tx repository.Tx, includeInactive bool) ([]*model.Coupon, error) {
	const q = `SELECT ` + couponCols + ` FROM coupons WHERE active OR $1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, includeInactive)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanCoupon(row rowScanner) (*model.Coupon, error) {
	c := &model.Coupon{}
	var typ string
	if err := row.Scan(&c.ID, &c.Code, &typ, &c.Value, &c.Active,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsageCount, &c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	c.Type = model.DiscountType(typ)
	return c, nil
}
