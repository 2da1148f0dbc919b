package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

var _ repository.AuditLogRepository = (*auditLogRepo)(nil)

type auditLogRepo struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepo(pool *pgxpool.Pool) *auditLogRepo {
	return &auditLogRepo{pool: pool}
}

func (r *auditLogRepo) Append(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	const q = `
INSERT INTO audit_log (id, entry_type, message, user_id, created_at)
VALUES ($1,$2,$3,$4,$5);`

	if _, err := execSQL(ctx, r.pool, tx, q, e.ID, e.Type, e.Message, nullStr(e.UserID), e.CreatedAt); err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}
