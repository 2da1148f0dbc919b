package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userCols = `id, telegram_id, username, first_name, referral_code, registered_at, last_active_at`

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (telegram_id) DO UPDATE SET
  username=$3, first_name=$4, last_active_at=$7;`

	_, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.TelegramID, u.Username, u.FirstName, nullStr(u.ReferralCode), u.RegisteredAt, u.LastActiveAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *userRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE telegram_id=$1;`
	return r.queryOne(ctx, tx, q, tgID)
}

func (r *userRepo) FindByReferralCode(ctx context.Context, tx repository.Tx, code string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE referral_code=$1;`
	return r.queryOne(ctx, tx, q, code)
}

func (r *userRepo) SetReferralCode(ctx context.Context, tx repository.Tx, id, code string) error {
	const q = `UPDATE users SET referral_code=$2 WHERE id=$1;`
	if _, err := execSQL(ctx, r.pool, tx, q, id, code); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *userRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *userRepo) ListTelegramIDs(ctx context.Context, tx repository.Tx) ([]int64, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT telegram_id FROM users ORDER BY telegram_id;`)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *userRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	u := &model.User{}
	var refCode *string
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &refCode, &u.RegisteredAt, &u.LastActiveAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if refCode != nil {
		u.ReferralCode = *refCode
	}
	return u, nil
}
