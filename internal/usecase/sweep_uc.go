package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/adapter"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

// SweepUseCase implements the two periodic expiration passes. Both are
// idempotent: expiring an already-expired row is a no-op and reminder
// duplication across overlapping runs is tolerated.
type SweepUseCase struct {
	subs     repository.SubscriptionRepository
	users    repository.UserRepository
	audit    repository.AuditLogRepository
	accessUC *AccessUseCase
	chat     adapter.ChatProvider
	log      *zerolog.Logger

	reminderFromDays int
	reminderToDays   int
	trialProductID   string
	now              func() time.Time
	sleep            func(time.Duration)
}

func NewSweepUseCase(
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	audit repository.AuditLogRepository,
	accessUC *AccessUseCase,
	chat adapter.ChatProvider,
	reminderFromDays, reminderToDays int,
	trialProductID string,
	logger *zerolog.Logger,
) *SweepUseCase {
	l := logger.With().Str("component", "SweepUC").Logger()
	return &SweepUseCase{
		subs:             subs,
		users:            users,
		audit:            audit,
		accessUC:         accessUC,
		chat:             chat,
		log:              &l,
		reminderFromDays: reminderFromDays,
		reminderToDays:   reminderToDays,
		trialProductID:   trialProductID,
		now:              time.Now,
		sleep:            time.Sleep,
	}
}

// SweepExpiringSoon sends renewal reminders for active subscriptions ending
// inside the reminder window. Reminders are best-effort: a rate-limit gets
// one retry after the provider-specified backoff, anything else is logged
// and skipped, never fatal to the sweep.
func (uc *SweepUseCase) SweepExpiringSoon(ctx context.Context) (int, error) {
	now := uc.now()
	from := now.AddDate(0, 0, uc.reminderFromDays)
	to := now.AddDate(0, 0, uc.reminderToDays)
	list, err := uc.subs.FindExpiring(ctx, repository.NoTX, from, to)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, sub := range list {
		user, err := uc.users.FindByID(ctx, repository.NoTX, sub.UserID)
		if err != nil {
			uc.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("reminder: user lookup failed")
			continue
		}
		msg := fmt.Sprintf("Your subscription ends on %s. Renew with /renovar to keep your access.", sub.EndAt.Format("02/01/2006"))
		if uc.sendWithOneRetry(ctx, user.TelegramID, msg) {
			sent++
		}
	}
	return sent, nil
}

// SweepExpired processes active subscriptions past their end date: remove
// the user from every configured group, flip the row to expired, then
// notify. The status flips even when removal partially fails; a ghost
// member is caught by the next reconciliation pass, not by holding the row
// active forever.
func (uc *SweepUseCase) SweepExpired(ctx context.Context) (int, error) {
	now := uc.now()
	list, err := uc.subs.FindExpired(ctx, repository.NoTX, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, sub := range list {
		user, err := uc.users.FindByID(ctx, repository.NoTX, sub.UserID)
		if err != nil {
			uc.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("expiry: user lookup failed")
			continue
		}

		removed, err := uc.accessUC.RevokeAccess(ctx, user.TelegramID)
		if err != nil {
			uc.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("expiry: access removal failed")
		}

		if err := uc.subs.UpdateStatus(ctx, repository.NoTX, sub.ID, model.SubscriptionStatusExpired, sub.EndAt); err != nil {
			uc.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("expiry: status update failed")
			continue
		}
		processed++

		_ = uc.audit.Append(ctx, repository.NoTX, &model.AuditEntry{
			ID:        ulid.Make().String(),
			Type:      model.AuditSubscriptionExpired,
			Message:   fmt.Sprintf("subscription %s expired, removed from %d group(s)", sub.ID, removed),
			UserID:    sub.UserID,
			CreatedAt: now,
		})

		// Trial expiry funnels into a paid-plan offer, paid expiry into a
		// renewal prompt. Business branch on product identity, not state.
		var msg string
		if sub.ProductID == uc.trialProductID {
			msg = "Your trial period has ended. Pick one of our plans with /start to stay in the community!"
		} else {
			msg = "Your subscription expired and your group access was removed. Use /renovar to come back."
		}
		uc.sendWithOneRetry(ctx, user.TelegramID, msg)
	}
	return processed, nil
}

func (uc *SweepUseCase) sendWithOneRetry(ctx context.Context, tgID int64, text string) bool {
	err := uc.chat.SendMessage(ctx, tgID, text)
	if err == nil {
		return true
	}
	var rle *adapter.RateLimitedError
	if errors.As(err, &rle) {
		uc.sleep(rle.RetryAfter)
		if err := uc.chat.SendMessage(ctx, tgID, text); err == nil {
			return true
		}
	}
	uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("notification delivery failed")
	return false
}
