package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

var _ repository.ReferralRepository = (*referralRepo)(nil)

type referralRepo struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) *referralRepo {
	return &referralRepo{pool: pool}
}

func (r *referralRepo) Create(ctx context.Context, tx repository.Tx, ref *model.Referral) error {
	const q = `
INSERT INTO referrals (id, referrer_id, referred_id, code, reward_granted, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`

	_, err := execSQL(ctx, r.pool, tx, q,
		ref.ID, ref.ReferrerID, ref.ReferredID, ref.Code, ref.RewardGranted, ref.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *referralRepo) FindByPair(ctx context.Context, tx repository.Tx, referrerID, referredID string) (*model.Referral, error) {
	const q = `
SELECT id, referrer_id, referred_id, code, reward_granted, created_at
  FROM referrals
 WHERE referrer_id=$1 AND referred_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, referrerID, referredID)
	if err != nil {
		return nil, err
	}
	ref := &model.Referral{}
	if err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.Code, &ref.RewardGranted, &ref.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return ref, nil
}

func (r *referralRepo) MarkRewardGranted(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE referrals SET reward_granted=true WHERE id=$1 AND reward_granted=false;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}
