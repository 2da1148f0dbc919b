package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/adapter"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

// InviteLink is one labeled link in the delivery bundle.
type InviteLink struct {
	GroupTitle string
	URL        string
}

// AccessSummary is the delivery-ready outcome of a grant pass. Message
// composition and sending belong to the caller.
type AccessSummary struct {
	Links         []InviteLink
	AlreadyMember int
	Failed        int
}

// AccessUseCase reconciles actual chat-group membership with the
// subscription's entitlement state: invite links on grant, kicks on revoke.
type AccessUseCase struct {
	groups repository.GroupRepository
	chat   adapter.ChatProvider
	log    *zerolog.Logger

	inviteTTL time.Duration
	// interCallDelay throttles per-group provider calls; the platform
	// penalizes bursts, so groups are processed sequentially.
	interCallDelay time.Duration
	sleep          func(time.Duration)
}

func NewAccessUseCase(groups repository.GroupRepository, chat adapter.ChatProvider, inviteTTL, interCallDelay time.Duration, logger *zerolog.Logger) *AccessUseCase {
	l := logger.With().Str("component", "AccessUC").Logger()
	return &AccessUseCase{
		groups:         groups,
		chat:           chat,
		log:            &l,
		inviteTTL:      inviteTTL,
		interCallDelay: interCallDelay,
		sleep:          time.Sleep,
	}
}

// GrantAccess issues single-use invite links for every configured group the
// user is not already a member of. Per-group failures are isolated: one
// group's error never aborts the rest, it only shows up in the summary.
func (uc *AccessUseCase) GrantAccess(ctx context.Context, tgUserID int64) (*AccessSummary, error) {
	groups, err := uc.groups.ListAll(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	summary := &AccessSummary{}
	for i, g := range groups {
		if i > 0 {
			uc.sleep(uc.interCallDelay)
		}

		status, err := uc.chat.MemberStatus(ctx, g.ChatID, tgUserID)
		if err != nil && !errors.Is(err, domain.ErrMemberNotFound) {
			uc.log.Warn().Err(err).Int64("chat_id", g.ChatID).Int64("tg_id", tgUserID).Msg("membership check failed")
			summary.Failed++
			continue
		}
		if err == nil && status.IsMember() {
			summary.AlreadyMember++
			continue
		}

		url, err := uc.createLinkWithRetry(ctx, g.ChatID)
		if err != nil {
			uc.log.Warn().Err(err).Int64("chat_id", g.ChatID).Msg("invite link creation failed")
			summary.Failed++
			continue
		}
		summary.Links = append(summary.Links, InviteLink{GroupTitle: g.Title, URL: url})
	}
	return summary, nil
}

// createLinkWithRetry honors the provider's retry-after once before
// giving up on the group.
func (uc *AccessUseCase) createLinkWithRetry(ctx context.Context, chatID int64) (string, error) {
	url, err := uc.chat.CreateInviteLink(ctx, chatID, uc.inviteTTL, 1)
	var rle *adapter.RateLimitedError
	if errors.As(err, &rle) {
		uc.sleep(rle.RetryAfter)
		return uc.chat.CreateInviteLink(ctx, chatID, uc.inviteTTL, 1)
	}
	return url, err
}

// RevokeAccess kicks the user from every configured group (ban then unban,
// so a future invite still works). "Already absent" and "is the owner" are
// expected non-errors; bot-level permission denial is logged and the group
// skipped. Returns the number of groups the user was removed from.
func (uc *AccessUseCase) RevokeAccess(ctx context.Context, tgUserID int64) (int, error) {
	groups, err := uc.groups.ListAll(ctx, repository.NoTX)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i, g := range groups {
		if i > 0 {
			uc.sleep(uc.interCallDelay)
		}
		err := uc.chat.KickMember(ctx, g.ChatID, tgUserID)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, domain.ErrMemberNotFound):
			uc.log.Debug().Int64("chat_id", g.ChatID).Int64("tg_id", tgUserID).Msg("user already absent from group")
		case errors.Is(err, domain.ErrCannotKickOwner):
			uc.log.Warn().Int64("chat_id", g.ChatID).Int64("tg_id", tgUserID).Msg("cannot remove chat owner")
		case errors.Is(err, domain.ErrPermissionDenied):
			uc.log.Warn().Int64("chat_id", g.ChatID).Msg("no permission to remove members, skipping group")
		default:
			uc.log.Error().Err(err).Int64("chat_id", g.ChatID).Int64("tg_id", tgUserID).Msg("kick failed")
		}
	}
	return removed, nil
}
