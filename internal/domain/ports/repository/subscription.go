package repository

import (
	"context"
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

// SubscriptionRepository is the port for subscription rows.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error

	// FindByPaymentID resolves the idempotency key for activation.
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Subscription, error)

	// FindActiveByUser returns the user's active subscription with the
	// latest coverage (lifetime rows sort latest), excluding excludeID
	// when non-empty. Returns ErrNotFound when none exists.
	FindActiveByUser(ctx context.Context, tx Tx, userID, excludeID string) (*model.Subscription, error)

	// ActivatePending is the compare-and-swap activation update:
	// UPDATE ... SET status='active', start/end ... WHERE id=$1 AND
	// status='pending_payment'. Returns false when the row was not in
	// pending state (a concurrent delivery won the race).
	ActivatePending(ctx context.Context, tx Tx, id string, startAt time.Time, endAt *time.Time) (bool, error)

	// UpdateStatus flips status and optionally the end date in one statement.
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.SubscriptionStatus, endAt *time.Time) error

	// UpdateEndDate rewrites the coverage end, used by referral rewards.
	UpdateEndDate(ctx context.Context, tx Tx, id string, endAt time.Time) error

	// RevokeActiveByUser marks every active row of the user as
	// revoked_by_admin with end date = now; returns the number of rows hit.
	RevokeActiveByUser(ctx context.Context, tx Tx, userID string, now time.Time, note string) (int, error)

	// FindExpiring returns active rows whose end date falls in (from, to].
	FindExpiring(ctx context.Context, tx Tx, from, to time.Time) ([]*model.Subscription, error)

	// FindExpired returns active rows whose end date is strictly before now.
	// Lifetime rows (null end date) are never selected.
	FindExpired(ctx context.Context, tx Tx, now time.Time) ([]*model.Subscription, error)

	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)

	// LockUser serializes lifecycle mutations per user for the duration of
	// the surrounding transaction (advisory xact lock in Postgres, no-op
	// for in-memory implementations).
	LockUser(ctx context.Context, tx Tx, userID string) error
}
