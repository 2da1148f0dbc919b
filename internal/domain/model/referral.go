package model

import (
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
)

// Referral records that a referred user entered with a referrer's code.
// A (referrer, referred) pair grants a reward at most once; the flag plus a
// uniqueness constraint on the pair enforce this.
type Referral struct {
	ID            string
	ReferrerID    string
	ReferredID    string
	Code          string
	RewardGranted bool
	CreatedAt     time.Time
}

func NewReferral(id, referrerID, referredID, code string) (*Referral, error) {
	if id == "" || referrerID == "" || referredID == "" || code == "" {
		return nil, domain.ErrInvalidArgument
	}
	if referrerID == referredID {
		return nil, domain.ErrSelfReferral
	}
	return &Referral{
		ID:         id,
		ReferrerID: referrerID,
		ReferredID: referredID,
		Code:       code,
		CreatedAt:  time.Now(),
	}, nil
}
