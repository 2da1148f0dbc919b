package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

var _ repository.GroupRepository = (*groupRepo)(nil)

type groupRepo struct {
	pool *pgxpool.Pool
}

func NewGroupRepo(pool *pgxpool.Pool) *groupRepo {
	return &groupRepo{pool: pool}
}

func (r *groupRepo) Save(ctx context.Context, tx repository.Tx, g *model.Group) error {
	const q = `
INSERT INTO groups (id, chat_id, title, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (chat_id) DO UPDATE SET title=$3;`

	if _, err := execSQL(ctx, r.pool, tx, q, g.ID, g.ChatID, g.Title, g.CreatedAt); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *groupRepo) DeleteByChatID(ctx context.Context, tx repository.Tx, chatID int64) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM groups WHERE chat_id=$1;`, chatID)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *groupRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Group, error) {
	const q = `SELECT id, chat_id, title, created_at FROM groups ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.Group
	for rows.Next() {
		g := &model.Group{}
		if err := rows.Scan(&g.ID, &g.ChatID, &g.Title, &g.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
