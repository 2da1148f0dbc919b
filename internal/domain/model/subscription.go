package model

import (
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "pending_payment"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusExtended SubscriptionStatus = "extended"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusRevoked  SubscriptionStatus = "revoked_by_admin"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s SubscriptionStatus) IsTerminal() bool {
	switch s {
	case SubscriptionStatusExtended, SubscriptionStatusExpired, SubscriptionStatusRevoked:
		return true
	}
	return false
}

// Subscription is the central entity: one row per purchase (or manual grant).
// Exactly one external payment reference maps to exactly one subscription;
// that reference is the idempotency key for activation.
type Subscription struct {
	ID            string
	UserID        string
	ProductID     string
	PaymentID     string // external payment reference, globally unique
	Status        SubscriptionStatus
	OriginalCents int64
	FinalCents    int64
	CouponID      string // empty if no coupon applied
	StartAt       *time.Time
	EndAt         *time.Time // nil = lifetime
	AdminNote     string     // set on manual grants and revocations
	CreatedAt     time.Time
}

// NewPendingSubscription creates a subscription awaiting payment confirmation.
// Enforces final price <= original price at construction time.
func NewPendingSubscription(id, userID, productID, paymentID string, originalCents, finalCents int64, couponID string) (*Subscription, error) {
	if id == "" || userID == "" || productID == "" || paymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if finalCents < 0 || finalCents > originalCents {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:            id,
		UserID:        userID,
		ProductID:     productID,
		PaymentID:     paymentID,
		Status:        SubscriptionStatusPending,
		OriginalCents: originalCents,
		FinalCents:    finalCents,
		CouponID:      couponID,
		CreatedAt:     time.Now(),
	}, nil
}

// CanTransition enforces the state machine:
//
//	pending_payment -> active
//	active          -> extended | expired | revoked_by_admin
//
// Terminal states never transition; a new purchase always creates a new row.
func (s *Subscription) CanTransition(to SubscriptionStatus) bool {
	switch s.Status {
	case SubscriptionStatusPending:
		return to == SubscriptionStatusActive
	case SubscriptionStatusActive:
		return to == SubscriptionStatusExtended || to == SubscriptionStatusExpired || to == SubscriptionStatusRevoked
	}
	return false
}

// InForce reports whether the subscription grants access at the given time.
// Lifetime subscriptions (nil EndAt) are in force while active.
func (s *Subscription) InForce(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	return s.EndAt == nil || s.EndAt.After(now)
}
