package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/adapter"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

// Locker serializes webhook processing per payment id, as an extra guard in
// front of the database-level conditional activation update.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// PaymentUseCase drives the purchase flow: PIX charge creation with a
// structured correlation record, and idempotent processing of asynchronous
// payment confirmations.
type PaymentUseCase struct {
	users    *UserUseCase
	subUC    *SubscriptionUseCase
	couponUC *CouponUseCase
	refUC    *ReferralUseCase
	accessUC *AccessUseCase

	products repository.ProductRepository
	coupons  repository.CouponRepository
	charges  repository.ChargeRepository
	audit    repository.AuditLogRepository
	tm       repository.TransactionManager

	gateway adapter.PaymentGateway
	chat    adapter.ChatProvider
	locker  Locker

	adminIDs []int64
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	users *UserUseCase,
	subUC *SubscriptionUseCase,
	couponUC *CouponUseCase,
	refUC *ReferralUseCase,
	accessUC *AccessUseCase,
	products repository.ProductRepository,
	coupons repository.CouponRepository,
	charges repository.ChargeRepository,
	audit repository.AuditLogRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	chat adapter.ChatProvider,
	locker Locker,
	adminIDs []int64,
	logger *zerolog.Logger,
) *PaymentUseCase {
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &PaymentUseCase{
		users:    users,
		subUC:    subUC,
		couponUC: couponUC,
		refUC:    refUC,
		accessUC: accessUC,
		products: products,
		coupons:  coupons,
		charges:  charges,
		audit:    audit,
		tm:       tm,
		gateway:  gateway,
		chat:     chat,
		locker:   locker,
		adminIDs: adminIDs,
		log:      &l,
	}
}

// InitiatePurchase creates the PIX charge on the provider and the pending
// subscription plus its correlation record in one transaction. Coupon usage
// is counted atomically with the pending row so the limit cannot be
// overrun by concurrent purchases.
func (uc *PaymentUseCase) InitiatePurchase(ctx context.Context, tgID int64, username, firstName, productID, couponCode, referralCode string) (*model.PixCharge, error) {
	user, err := uc.users.GetOrCreate(ctx, tgID, username, firstName)
	if err != nil {
		return nil, err
	}
	product, err := uc.products.FindByID(ctx, repository.NoTX, productID)
	if err != nil {
		return nil, fmt.Errorf("find product %s: %w", productID, err)
	}

	finalCents := product.PriceCents
	var coupon *model.Coupon
	if couponCode != "" {
		coupon, err = uc.couponUC.ValidateCode(ctx, couponCode)
		if err != nil {
			return nil, err
		}
		finalCents = coupon.Apply(product.PriceCents)
	}

	var referrer *model.User
	if referralCode != "" {
		referrer, err = uc.refUC.ResolveCode(ctx, referralCode, user.ID)
		if err != nil {
			return nil, err
		}
	}

	desc := fmt.Sprintf("Access '%s' for %s", product.Name, firstName)
	pix, err := uc.gateway.CreateCharge(ctx, uuid.NewString(), finalCents, desc, ulid.Make().String())
	if err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}

	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		charge, err := model.NewPaymentCharge(pix.PaymentID, user.ID, product.ID, finalCents, uc.gateway.Name())
		if err != nil {
			return err
		}
		if coupon != nil {
			charge.CouponID = coupon.ID
		}
		if referrer != nil {
			charge.ReferrerID = referrer.ID
			charge.ReferralCode = referralCode
		}
		if err := uc.charges.Save(ctx, tx, charge); err != nil {
			return err
		}

		couponID := ""
		if coupon != nil {
			couponID = coupon.ID
		}
		if _, err := uc.subUC.CreatePending(ctx, tx, user.ID, product.ID, pix.PaymentID, product.PriceCents, finalCents, couponID); err != nil {
			return err
		}

		if coupon != nil {
			ok, err := uc.coupons.IncrementUsage(ctx, tx, coupon.ID)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrCouponExhausted
			}
			if err := uc.audit.Append(ctx, tx, &model.AuditEntry{
				ID:        ulid.Make().String(),
				Type:      model.AuditCouponApplied,
				Message:   fmt.Sprintf("coupon %s applied to payment %s (%d -> %d)", coupon.Code, pix.PaymentID, product.PriceCents, finalCents),
				UserID:    user.ID,
				CreatedAt: time.Now(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().Str("payment_id", pix.PaymentID).Str("user_id", user.ID).Int64("amount", finalCents).Msg("pix charge created")
	return pix, nil
}

// HandleNotification is the webhook entry point. The provider delivers
// at-least-once; only approved charges trigger activation.
func (uc *PaymentUseCase) HandleNotification(ctx context.Context, paymentID string) error {
	status, err := uc.gateway.ChargeStatus(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("charge status %s: %w", paymentID, err)
	}
	if status != adapter.ChargeStatusApproved {
		uc.log.Debug().Str("payment_id", paymentID).Str("status", status).Msg("ignoring non-approved notification")
		return nil
	}
	return uc.ProcessApproved(ctx, paymentID)
}

// ProcessApproved activates the subscription bound to the payment, then
// chains access granting and the referral reward. Duplicate deliveries are
// no-ops: replays short-circuit inside Activate, and a per-payment lock
// keeps two concurrent deliveries from racing through the side effects.
func (uc *PaymentUseCase) ProcessApproved(ctx context.Context, paymentID string) error {
	token, err := uc.locker.TryLock(ctx, "payment:"+paymentID, 60*time.Second)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			uc.log.Debug().Str("payment_id", paymentID).Msg("payment already being processed")
			return nil
		}
		return err
	}
	defer func() { _ = uc.locker.Unlock(ctx, "payment:"+paymentID, token) }()

	res, err := uc.subUC.Activate(ctx, paymentID)
	if err != nil {
		uc.alertAdmins(ctx, fmt.Sprintf("activation failed for payment %s: %v", paymentID, err))
		return err
	}
	if res.Replayed {
		return nil
	}

	summary, err := uc.accessUC.GrantAccess(ctx, res.User.TelegramID)
	if err != nil {
		uc.alertAdmins(ctx, fmt.Sprintf("access grant failed for payment %s: %v", paymentID, err))
	} else {
		uc.sendAccessBundle(ctx, res.User.TelegramID, summary)
	}

	charge, err := uc.charges.FindByPaymentID(ctx, repository.NoTX, paymentID)
	if err != nil {
		// Manual grants and legacy rows have no correlation record.
		if !errors.Is(err, domain.ErrNotFound) {
			uc.log.Error().Err(err).Str("payment_id", paymentID).Msg("correlation lookup failed")
		}
		return nil
	}
	if charge.ReferrerID != "" {
		granted, err := uc.refUC.GrantReward(ctx, charge.ReferrerID, charge.UserID, charge.ReferralCode)
		if err != nil {
			uc.log.Error().Err(err).Str("payment_id", paymentID).Msg("referral reward failed")
		} else if granted {
			uc.notifyReferrer(ctx, charge.ReferrerID)
		}
	}
	return nil
}

func (uc *PaymentUseCase) sendAccessBundle(ctx context.Context, tgID int64, summary *AccessSummary) {
	var b strings.Builder
	b.WriteString("Payment confirmed! Here is your access:\n\n")
	for _, l := range summary.Links {
		fmt.Fprintf(&b, "%s: %s\n", l.GroupTitle, l.URL)
	}
	if len(summary.Links) > 0 {
		b.WriteString("\nEach link is single-use and expires soon. Use /suporte if one stops working.\n")
	}
	if summary.AlreadyMember > 0 {
		fmt.Fprintf(&b, "\nYou are already a member of %d group(s).\n", summary.AlreadyMember)
	}
	if summary.Failed > 0 {
		fmt.Fprintf(&b, "\nWe could not prepare links for %d group(s); contact support.\n", summary.Failed)
	}
	if err := uc.chat.SendMessage(ctx, tgID, b.String()); err != nil {
		uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("failed to deliver access bundle")
	}
}

func (uc *PaymentUseCase) notifyReferrer(ctx context.Context, referrerID string) {
	referrer, err := uc.users.FindByID(ctx, referrerID)
	if err != nil {
		return
	}
	msg := "Someone you referred just completed a purchase. Your subscription was extended as a thank-you!"
	if err := uc.chat.SendMessage(ctx, referrer.TelegramID, msg); err != nil {
		uc.log.Debug().Err(err).Str("user_id", referrerID).Msg("referrer notification failed")
	}
}

func (uc *PaymentUseCase) alertAdmins(ctx context.Context, text string) {
	for _, id := range uc.adminIDs {
		if err := uc.chat.SendMessage(ctx, id, "[alert] "+text); err != nil {
			uc.log.Debug().Err(err).Int64("admin_id", id).Msg("admin alert failed")
		}
	}
}
