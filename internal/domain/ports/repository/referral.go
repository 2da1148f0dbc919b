package repository

import (
	"context"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
)

// ReferralRepository is the port for referral reward records.
type ReferralRepository interface {
	// Create inserts the record; the store enforces uniqueness on the
	// (referrer, referred) pair and returns ErrAlreadyExists on conflict.
	Create(ctx context.Context, tx Tx, r *model.Referral) error

	FindByPair(ctx context.Context, tx Tx, referrerID, referredID string) (*model.Referral, error)

	// MarkRewardGranted flips reward_granted with a conditional update
	// (WHERE reward_granted = false); returns false when already granted.
	MarkRewardGranted(ctx context.Context, tx Tx, id string) (bool, error)
}
