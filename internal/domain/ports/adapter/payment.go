package adapter

import (
	"context"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

// Charge statuses as reported by the provider. Activation acts only on
// ChargeStatusApproved; everything else is ignored by the webhook path.
const (
	ChargeStatusApproved  = "approved"
	ChargeStatusPending   = "pending"
	ChargeStatusRejected  = "rejected"
	ChargeStatusCancelled = "cancelled"
)

// PaymentGateway is the hex port for external PIX payment providers.
// Notification delivery is at-least-once; idempotency is the caller's
// responsibility, not the provider's.
type PaymentGateway interface {
	Name() string

	// CreateCharge creates a one-shot PIX charge. idempotencyKey guards
	// against duplicate charge creation on retries.
	CreateCharge(ctx context.Context, idempotencyKey string, amountCents int64, description, correlationID string) (*model.PixCharge, error)

	// ChargeStatus looks up the current status of a payment by provider id.
	ChargeStatus(ctx context.Context, paymentID string) (string, error)
}
