package model

import "time"

// AuditEntry is an append-only log record. It is a write-only side channel:
// nothing reads it back for control flow.
type AuditEntry struct {
	ID        string
	Type      string
	Message   string
	UserID    string // optional
	CreatedAt time.Time
}

// Audit entry types emitted by the lifecycle and reconciliation paths.
const (
	AuditSubscriptionActivated = "subscription_activated"
	AuditSubscriptionExtended  = "subscription_extended"
	AuditSubscriptionExpired   = "subscription_expired"
	AuditSubscriptionRevoked   = "subscription_revoked"
	AuditManualGrant           = "manual_grant"
	AuditCouponApplied         = "coupon_applied"
	AuditReferralReward        = "referral_reward"
	AuditAccessGranted         = "access_granted"
	AuditAccessRevoked         = "access_revoked"
)
