package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrInvalidTransition    = errors.New("invalid subscription state transition")

	// Coupon rejection reasons, checked in this order by Coupon.Validate
	ErrCouponInactive   = errors.New("coupon not found or inactive")
	ErrCouponNotStarted = errors.New("coupon validity window has not started")
	ErrCouponExpired    = errors.New("coupon validity window has ended")
	ErrCouponExhausted  = errors.New("coupon usage limit reached")

	// Referral errors
	ErrSelfReferral         = errors.New("self-referral is not allowed")
	ErrRewardAlreadyGranted = errors.New("referral reward already granted")
	ErrReferralCodeNotFound = errors.New("referral code not found")

	// Chat provider errors. Rate limiting carries a retry-after payload
	// and is a typed error in ports/adapter.
	ErrMemberNotFound   = errors.New("member not found in chat")
	ErrCannotKickOwner  = errors.New("cannot remove chat owner")
	ErrPermissionDenied = errors.New("bot lacks permission for chat operation")

	// Infra-level errors surfaced by repositories
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor passed to repository")

	// Distributed lock
	ErrLockNotAcquired = errors.New("could not acquire lock")

	// Broadcast: only one mass send may run at a time
	ErrBroadcastRunning = errors.New("a broadcast is already running")
)
