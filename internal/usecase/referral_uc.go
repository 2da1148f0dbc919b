package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

// ReferralUseCase grants the fixed-duration referral reward. It only runs
// chained after a successful activation, never independently of a real
// payment.
type ReferralUseCase struct {
	referrals repository.ReferralRepository
	subs      repository.SubscriptionRepository
	users     repository.UserRepository
	audit     repository.AuditLogRepository
	tm        repository.TransactionManager
	log       *zerolog.Logger

	rewardDays int
	now        func() time.Time
}

func NewReferralUseCase(
	referrals repository.ReferralRepository,
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	audit repository.AuditLogRepository,
	tm repository.TransactionManager,
	rewardDays int,
	logger *zerolog.Logger,
) *ReferralUseCase {
	l := logger.With().Str("component", "ReferralUC").Logger()
	return &ReferralUseCase{
		referrals:  referrals,
		subs:       subs,
		users:      users,
		audit:      audit,
		tm:         tm,
		log:        &l,
		rewardDays: rewardDays,
		now:        time.Now,
	}
}

// ResolveCode maps a referral code to its owner. Self-referral is rejected
// here, before any subscription or payment step.
func (uc *ReferralUseCase) ResolveCode(ctx context.Context, code, buyerUserID string) (*model.User, error) {
	referrer, err := uc.users.FindByReferralCode(ctx, repository.NoTX, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrReferralCodeNotFound
		}
		return nil, err
	}
	if referrer.ID == buyerUserID {
		return nil, domain.ErrSelfReferral
	}
	return referrer, nil
}

// GrantReward extends the referrer's coverage by the configured number of
// days, at most once per (referrer, referred) pair. The extension stacks
// from the later of "now" and the referrer's current end date, same
// arithmetic as activation. Returns false when no reward was granted.
func (uc *ReferralUseCase) GrantReward(ctx context.Context, referrerID, referredID, code string) (bool, error) {
	if referrerID == referredID {
		return false, domain.ErrSelfReferral
	}
	granted := false
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		rec, err := uc.referrals.FindByPair(ctx, tx, referrerID, referredID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if rec == nil {
			rec, err = model.NewReferral(uuid.NewString(), referrerID, referredID, code)
			if err != nil {
				return err
			}
			if err := uc.referrals.Create(ctx, tx, rec); err != nil {
				if errors.Is(err, domain.ErrAlreadyExists) {
					// Concurrent insert for the same pair; the other
					// path owns the reward.
					return nil
				}
				return err
			}
		} else if rec.RewardGranted {
			return nil
		}

		if err := uc.subs.LockUser(ctx, tx, referrerID); err != nil {
			return err
		}
		sub, err := uc.subs.FindActiveByUser(ctx, tx, referrerID, "")
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Nothing to extend: the record stays ungranted so a
				// later qualifying purchase can still reward.
				return nil
			}
			return err
		}

		ok, err := uc.referrals.MarkRewardGranted(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if sub.EndAt != nil {
			base := uc.now()
			if sub.EndAt.After(base) {
				base = *sub.EndAt
			}
			newEnd := base.AddDate(0, 0, uc.rewardDays)
			if err := uc.subs.UpdateEndDate(ctx, tx, sub.ID, newEnd); err != nil {
				return err
			}
		}
		// Lifetime referrers get the flag without a date change.

		granted = true
		return uc.audit.Append(ctx, tx, &model.AuditEntry{
			ID:        ulid.Make().String(),
			Type:      model.AuditReferralReward,
			Message:   fmt.Sprintf("referral reward of %d day(s) for code %s (referred %s)", uc.rewardDays, code, referredID),
			UserID:    referrerID,
			CreatedAt: uc.now(),
		})
	})
	if err != nil {
		return false, err
	}
	if granted {
		uc.log.Info().Str("referrer_id", referrerID).Str("referred_id", referredID).Msg("referral reward granted")
	}
	return granted, nil
}

// EnsureCode returns the user's referral code, assigning the default one on
// first use.
func (uc *ReferralUseCase) EnsureCode(ctx context.Context, user *model.User) (string, error) {
	if user.ReferralCode != "" {
		return user.ReferralCode, nil
	}
	code := user.DefaultReferralCode()
	if err := uc.users.SetReferralCode(ctx, repository.NoTX, user.ID, code); err != nil {
		return "", err
	}
	user.ReferralCode = code
	return code, nil
}
