package adapter

import (
	"context"
	"fmt"
	"time"
)

// MemberStatus is the membership state of a user in a chat.
type MemberStatus string

const (
	MemberStatusMember MemberStatus = "member"
	MemberStatusAdmin  MemberStatus = "admin"
	MemberStatusOwner  MemberStatus = "owner"
	MemberStatusNone   MemberStatus = "none"
)

// IsMember reports whether the status counts as being inside the chat.
func (s MemberStatus) IsMember() bool {
	return s == MemberStatusMember || s == MemberStatusAdmin || s == MemberStatusOwner
}

// RateLimitedError is returned by the chat provider when the platform
// throttles the bot; RetryAfter is the provider-specified backoff.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("chat provider rate limited, retry after %s", e.RetryAfter)
}

// ChatProvider is the hex port for the group/channel platform.
type ChatProvider interface {
	// MemberStatus checks current membership of userID in chatID.
	MemberStatus(ctx context.Context, chatID, userID int64) (MemberStatus, error)

	// CreateInviteLink requests a single-use, time-limited invite link.
	CreateInviteLink(ctx context.Context, chatID int64, ttl time.Duration, memberLimit int) (string, error)

	// KickMember removes the user via ban followed by unban, so the user
	// can rejoin later through a fresh invite. Maps platform "not found",
	// "owner" and "forbidden" responses to the corresponding domain errors.
	KickMember(ctx context.Context, chatID, userID int64) error

	// SendMessage delivers a plain text message to a user.
	SendMessage(ctx context.Context, userID int64, text string) error
}
