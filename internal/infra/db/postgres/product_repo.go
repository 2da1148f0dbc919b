package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

var _ repository.ProductRepository = (*productRepo)(nil)

type productRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *productRepo {
	return &productRepo{pool: pool}
}

func (r *productRepo) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	const q = `
INSERT INTO products (id, name, price_cents, duration_days, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET name=$2, price_cents=$3, duration_days=$4;`

	if _, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.PriceCents, p.DurationDays, p.CreatedAt); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *productRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	const q = `SELECT id, name, price_cents, duration_days, created_at FROM products WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p := &model.Product{}
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.DurationDays, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *productRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Product, error) {
	const q = `SELECT id, name, price_cents, duration_days, created_at FROM products ORDER BY price_cents ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.Product
	for rows.Next() {
		p := &model.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.DurationDays, &p.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
