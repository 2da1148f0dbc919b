package postgres

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subCols = `id, user_id, product_id, payment_id, status, original_cents, final_cents, coupon_id, start_at, end_at, admin_note, created_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  status=$5, original_cents=$6, final_cents=$7, coupon_id=$8, start_at=$9, end_at=$10, admin_note=$11;`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.ProductID, s.PaymentID, string(s.Status),
		s.OriginalCents, s.FinalCents, nullStr(s.CouponID), s.StartAt, s.EndAt, s.AdminNote, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	const q = `SELECT ` + subCols + ` FROM subscriptions WHERE payment_id=$1;`
	return r.queryOne(ctx, tx, q, paymentID)
}

func (r *subscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID, excludeID string) (*model.Subscription, error) {
	// Lifetime rows (NULL end_at) sort first: they represent the latest
	// possible coverage. The exclusion filter goes through NULLIF so an
	// empty excludeID never reaches the uuid cast: the planner folds bound
	// constants, and ''::uuid errors at plan time before the OR can
	// short-circuit.
	const q = `
SELECT ` + subCols + `
  FROM subscriptions
 WHERE user_id=$1 AND status='active' AND (NULLIF($2, '') IS NULL OR id <> NULLIF($2, '')::uuid)
 ORDER BY end_at DESC NULLS FIRST
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID, excludeID)
}

func (r *subscriptionRepo) ActivatePending(ctx context.Context, tx repository.Tx, id string, startAt time.Time, endAt *time.Time) (bool, error) {
	const q = `
UPDATE subscriptions
   SET status='active', start_at=$2, end_at=$3
 WHERE id=$1 AND status='pending_payment';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, startAt, endAt)
	if err != nil {
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus, endAt *time.Time) error {
	const q = `UPDATE subscriptions SET status=$2, end_at=$3 WHERE id=$1;`
	if _, err := execSQL(ctx, r.pool, tx, q, id, string(status), endAt); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) UpdateEndDate(ctx context.Context, tx repository.Tx, id string, endAt time.Time) error {
	const q = `UPDATE subscriptions SET end_at=$2 WHERE id=$1;`
	if _, err := execSQL(ctx, r.pool, tx, q, id, endAt); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) RevokeActiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time, note string) (int, error) {
	const q = `
UPDATE subscriptions
   SET status='revoked_by_admin', end_at=$2, admin_note=$3
 WHERE user_id=$1 AND status='active';`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, now, note)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	return int(tag.RowsAffected()), nil
}

func (r *subscriptionRepo) FindExpiring(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subCols + `
  FROM subscriptions
 WHERE status='active' AND end_at IS NOT NULL AND end_at > $1 AND end_at <= $2
 ORDER BY end_at ASC;`
	return r.queryMany(ctx, tx, q, from, to)
}

func (r *subscriptionRepo) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subCols + `
  FROM subscriptions
 WHERE status='active' AND end_at IS NOT NULL AND end_at < $1
 ORDER BY end_at ASC;`
	return r.queryMany(ctx, tx, q, now)
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

// LockUser takes an advisory xact lock scoped to the surrounding
// transaction, serializing lifecycle mutations per user.
func (r *subscriptionRepo) LockUser(ctx context.Context, tx repository.Tx, userID string) error {
	if _, err := execSQL(ctx, r.pool, tx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(userID)); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanSub(row)
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSub(row rowScanner) (*model.Subscription, error) {
	s := &model.Subscription{}
	var status string
	var couponID *string
	if err := row.Scan(&s.ID, &s.UserID, &s.ProductID, &s.PaymentID, &status,
		&s.OriginalCents, &s.FinalCents, &couponID, &s.StartAt, &s.EndAt, &s.AdminNote, &s.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	if couponID != nil {
		s.CouponID = *couponID
	}
	return s, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
