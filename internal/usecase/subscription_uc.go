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

// ActivationResult is what Activate hands back to the payment flow so it can
// trigger access reconciliation and reward logic.
type ActivationResult struct {
	Subscription *model.Subscription
	User         *model.User
	// Extended is true when the activation superseded a prior active row.
	Extended bool
	// Replayed is true when the subscription was already past
	// pending_payment: a duplicate notification replay. Callers must not
	// re-issue links or rewards for replays.
	Replayed bool
}

// SubscriptionUseCase owns the subscription state machine: create-pending,
// activate with extension semantics, revoke, manual grant.
type SubscriptionUseCase struct {
	subs     repository.SubscriptionRepository
	products repository.ProductRepository
	users    repository.UserRepository
	audit    repository.AuditLogRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger

	now func() time.Time
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	products repository.ProductRepository,
	users repository.UserRepository,
	audit repository.AuditLogRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *SubscriptionUseCase {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &SubscriptionUseCase{
		subs:     subs,
		products: products,
		users:    users,
		audit:    audit,
		tm:       tm,
		log:      &l,
		now:      time.Now,
	}
}

// CreatePending inserts a pending_payment subscription bound to an external
// payment reference. No side effect on group membership yet.
func (uc *SubscriptionUseCase) CreatePending(ctx context.Context, tx repository.Tx, userID, productID, paymentID string, originalCents, finalCents int64, couponID string) (*model.Subscription, error) {
	sub, err := model.NewPendingSubscription(uuid.NewString(), userID, productID, paymentID, originalCents, finalCents, couponID)
	if err != nil {
		return nil, err
	}
	if err := uc.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Activate transitions the subscription bound to paymentID from
// pending_payment to active, computing start/end dates.
//
// Renewals must not shrink or restart an unexpired entitlement: the new end
// date stacks from the later of "now" and the prior active row's end date,
// and the superseded row is marked extended. Safe under at-least-once
// delivery: a replayed notification short-circuits without recomputing
// dates, and the status flip itself is a conditional update so two
// near-simultaneous deliveries cannot both win.
func (uc *SubscriptionUseCase) Activate(ctx context.Context, paymentID string) (*ActivationResult, error) {
	var res ActivationResult
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := uc.subs.FindByPaymentID(ctx, tx, paymentID)
		if err != nil {
			return fmt.Errorf("find subscription by payment %s: %w", paymentID, err)
		}
		user, err := uc.users.FindByID(ctx, tx, sub.UserID)
		if err != nil {
			return fmt.Errorf("find user %s: %w", sub.UserID, err)
		}
		res.Subscription = sub
		res.User = user

		if sub.Status != model.SubscriptionStatusPending {
			// Duplicate notification replay: success-no-op.
			res.Replayed = true
			return nil
		}

		if err := uc.subs.LockUser(ctx, tx, sub.UserID); err != nil {
			return err
		}

		product, err := uc.products.FindByID(ctx, tx, sub.ProductID)
		if err != nil {
			return fmt.Errorf("find product %s: %w", sub.ProductID, err)
		}

		now := uc.now()
		prev, err := uc.subs.FindActiveByUser(ctx, tx, sub.UserID, sub.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		base := now
		if prev != nil && prev.EndAt != nil && prev.EndAt.After(now) {
			base = *prev.EndAt
		}
		var endAt *time.Time
		if product.DurationDays != nil {
			e := base.AddDate(0, 0, *product.DurationDays)
			endAt = &e
		}

		ok, err := uc.subs.ActivatePending(ctx, tx, sub.ID, now, endAt)
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race against a concurrent delivery; the winner
			// already set the dates. Re-read and report a replay.
			fresh, err := uc.subs.FindByPaymentID(ctx, tx, paymentID)
			if err != nil {
				return err
			}
			res.Subscription = fresh
			res.Replayed = true
			return nil
		}

		sub.Status = model.SubscriptionStatusActive
		sub.StartAt = &now
		sub.EndAt = endAt

		if prev != nil {
			if err := uc.subs.UpdateStatus(ctx, tx, prev.ID, model.SubscriptionStatusExtended, prev.EndAt); err != nil {
				return err
			}
			res.Extended = true
		}

		entry := &model.AuditEntry{
			ID:        ulid.Make().String(),
			Type:      model.AuditSubscriptionActivated,
			Message:   fmt.Sprintf("subscription %s activated for payment %s", sub.ID, paymentID),
			UserID:    sub.UserID,
			CreatedAt: now,
		}
		if res.Extended {
			entry.Type = model.AuditSubscriptionExtended
		}
		return uc.audit.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().
		Str("payment_id", paymentID).
		Str("subscription_id", res.Subscription.ID).
		Bool("extended", res.Extended).
		Bool("replayed", res.Replayed).
		Msg("activation processed")
	return &res, nil
}

// Revoke marks every active subscription of the user as revoked_by_admin
// with end date = now. Access removal is the caller's job: the engine does
// state, reconciliation does I/O.
func (uc *SubscriptionUseCase) Revoke(ctx context.Context, userID, note string) (int, error) {
	var revoked int
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.subs.LockUser(ctx, tx, userID); err != nil {
			return err
		}
		now := uc.now()
		n, err := uc.subs.RevokeActiveByUser(ctx, tx, userID, now, note)
		if err != nil {
			return err
		}
		revoked = n
		if n == 0 {
			return nil
		}
		return uc.audit.Append(ctx, tx, &model.AuditEntry{
			ID:        ulid.Make().String(),
			Type:      model.AuditSubscriptionRevoked,
			Message:   fmt.Sprintf("revoked %d subscription(s): %s", n, note),
			UserID:    userID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}

// GrantManual creates an already-active subscription issued by an admin.
// It reuses the activation extension arithmetic so a manual top-up never
// shrinks an existing paid term.
func (uc *SubscriptionUseCase) GrantManual(ctx context.Context, userID, productID, note string) (*model.Subscription, error) {
	var granted *model.Subscription
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.subs.LockUser(ctx, tx, userID); err != nil {
			return err
		}
		product, err := uc.products.FindByID(ctx, tx, productID)
		if err != nil {
			return fmt.Errorf("find product %s: %w", productID, err)
		}

		now := uc.now()
		prev, err := uc.subs.FindActiveByUser(ctx, tx, userID, "")
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		base := now
		if prev != nil && prev.EndAt != nil && prev.EndAt.After(now) {
			base = *prev.EndAt
		}
		var endAt *time.Time
		if product.DurationDays != nil {
			e := base.AddDate(0, 0, *product.DurationDays)
			endAt = &e
		}

		sub, err := model.NewPendingSubscription(
			uuid.NewString(), userID, productID,
			"manual:"+ulid.Make().String(),
			product.PriceCents, 0, "",
		)
		if err != nil {
			return err
		}
		sub.Status = model.SubscriptionStatusActive
		sub.StartAt = &now
		sub.EndAt = endAt
		sub.AdminNote = note
		if err := uc.subs.Save(ctx, tx, sub); err != nil {
			return err
		}

		if prev != nil {
			if err := uc.subs.UpdateStatus(ctx, tx, prev.ID, model.SubscriptionStatusExtended, prev.EndAt); err != nil {
				return err
			}
		}

		granted = sub
		return uc.audit.Append(ctx, tx, &model.AuditEntry{
			ID:        ulid.Make().String(),
			Type:      model.AuditManualGrant,
			Message:   fmt.Sprintf("manual grant of product %s: %s", productID, note),
			UserID:    userID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return granted, nil
}

// ActiveForUser returns the user's in-force subscription, if any.
func (uc *SubscriptionUseCase) ActiveForUser(ctx context.Context, userID string) (*model.Subscription, error) {
	return uc.subs.FindActiveByUser(ctx, repository.NoTX, userID, "")
}

// CountByStatus delegates to the repository, used by stats surfaces.
func (uc *SubscriptionUseCase) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return uc.subs.CountByStatus(ctx, repository.NoTX)
}
