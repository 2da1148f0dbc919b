package repository

import (
	"context"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

// AuditLogRepository appends audit entries. Write-only.
type AuditLogRepository interface {
	Append(ctx context.Context, tx Tx, e *model.AuditEntry) error
}
