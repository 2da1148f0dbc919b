package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/config"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/usecase"
)

// rateLimiter throttles chat commands per user.
type rateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Bot polls Telegram for updates and routes commands into the use cases.
// Updates are fanned out to a fixed pool of workers.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.BotConfig
	userUC   *usecase.UserUseCase
	payUC    *usecase.PaymentUseCase
	subUC    *usecase.SubscriptionUseCase
	accessUC *usecase.AccessUseCase
	couponUC *usecase.CouponUseCase
	refUC    *usecase.ReferralUseCase
	bcastUC  *usecase.BroadcastUseCase
	products repository.ProductRepository
	limiter  rateLimiter
	log      *zerolog.Logger

	adminIDs map[int64]struct{}

	// per-chat purchase context picked up by the next buy action
	mu              sync.Mutex
	pendingCoupon   map[int64]string
	pendingReferral map[int64]string

	cancelPolling context.CancelFunc
}

func NewBot(
	api *tgbotapi.BotAPI,
	cfg *config.BotConfig,
	userUC *usecase.UserUseCase,
	payUC *usecase.PaymentUseCase,
	subUC *usecase.SubscriptionUseCase,
	accessUC *usecase.AccessUseCase,
	couponUC *usecase.CouponUseCase,
	refUC *usecase.ReferralUseCase,
	bcastUC *usecase.BroadcastUseCase,
	products repository.ProductRepository,
	limiter rateLimiter,
	logger *zerolog.Logger,
) *Bot {
	l := logger.With().Str("component", "TelegramBot").Logger()
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		api:             api,
		cfg:             cfg,
		userUC:          userUC,
		payUC:           payUC,
		subUC:           subUC,
		accessUC:        accessUC,
		couponUC:        couponUC,
		refUC:           refUC,
		bcastUC:         bcastUC,
		products:        products,
		limiter:         limiter,
		log:             &l,
		adminIDs:        admins,
		pendingCoupon:   make(map[int64]string),
		pendingReferral: make(map[int64]string),
	}
}

// StartPolling consumes the update channel until ctx is canceled.
func (b *Bot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	b.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < b.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					if err := b.handleUpdate(ctx, update); err != nil {
						b.log.Error().Err(err).Int("worker", workerID).Msg("update handling failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	go func() {
		defer close(updateChan)
		for {
			select {
			case update := <-updates:
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	b.api.StopReceivingUpdates()
	wg.Wait()
	return nil
}

func (b *Bot) StopPolling() {
	if b.cancelPolling != nil {
		b.cancelPolling()
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return b.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}
	from := update.Message.From

	user, err := b.userUC.GetOrCreate(ctx, from.ID, from.UserName, from.FirstName)
	if err != nil {
		b.reply(from.ID, "Something went wrong on our side. Please try again in a moment.")
		return err
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" || text[0] != '/' {
		b.reply(user.TelegramID, "I didn't get that. Use /start to see the available plans.")
		return nil
	}

	cmd := text
	args := ""
	if i := strings.IndexByte(text, ' '); i > 0 {
		cmd, args = text[:i], strings.TrimSpace(text[i+1:])
	}

	if ok, err := b.limiter.Allow(ctx, fmt.Sprintf("rate_limit:%d:%s", user.TelegramID, cmd), 5, time.Minute); err == nil && !ok {
		b.reply(user.TelegramID, "Too many requests. Wait a minute and try again.")
		return nil
	}

	switch cmd {
	case "/start":
		return b.cmdStart(ctx, user, args)
	case "/status":
		return b.cmdStatus(ctx, user)
	case "/renovar":
		return b.sendPlans(ctx, user.TelegramID, "Pick a plan to renew your access:")
	case "/cupom":
		return b.cmdCoupon(ctx, user, args)
	case "/indicar":
		return b.cmdReferral(ctx, user)
	case "/meuslinks":
		return b.cmdMyLinks(ctx, user)
	case "/suporte":
		b.reply(user.TelegramID, "Need help? Message our support team and we'll get back to you as soon as possible.")
		return nil
	case "/stats":
		return b.cmdStats(ctx, user)
	case "/broadcast":
		return b.cmdBroadcast(ctx, user, args)
	default:
		b.reply(user.TelegramID, "Unknown command. Use /start to see the available plans.")
		return nil
	}
}

// cmdStart greets and lists plans. A deep-link payload carrying a referral
// code (t.me/<bot>?start=REF123) is stashed for the next purchase.
func (b *Bot) cmdStart(ctx context.Context, user *model.User, payload string) error {
	if payload != "" {
		b.mu.Lock()
		b.pendingReferral[user.TelegramID] = payload
		b.mu.Unlock()
		b.reply(user.TelegramID, "Referral code registered! It will be applied to your purchase.")
	}
	return b.sendPlans(ctx, user.TelegramID, fmt.Sprintf("Welcome, %s! Choose a plan to join the community:", user.FirstName))
}

func (b *Bot) sendPlans(ctx context.Context, tgID int64, header string) error {
	list, err := b.products.ListAll(ctx, repository.NoTX)
	if err != nil {
		b.reply(tgID, "Couldn't load the plans right now. Try again shortly.")
		return err
	}
	if len(list) == 0 {
		b.reply(tgID, "No plans available at the moment.")
		return nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(list))
	for _, p := range list {
		label := fmt.Sprintf("%s — R$ %d,%02d", p.Name, p.PriceCents/100, p.PriceCents%100)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "buy:"+p.ID),
		))
	}
	msg := tgbotapi.NewMessage(tgID, header)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	defer func() {
		_, _ = b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
	}()
	if cb.From == nil || !strings.HasPrefix(cb.Data, "buy:") {
		return nil
	}
	productID := strings.TrimPrefix(cb.Data, "buy:")

	b.mu.Lock()
	coupon := b.pendingCoupon[cb.From.ID]
	referral := b.pendingReferral[cb.From.ID]
	delete(b.pendingCoupon, cb.From.ID)
	delete(b.pendingReferral, cb.From.ID)
	b.mu.Unlock()

	charge, err := b.payUC.InitiatePurchase(ctx, cb.From.ID, cb.From.UserName, cb.From.FirstName, productID, coupon, referral)
	if err != nil {
		b.reply(cb.From.ID, purchaseErrorMessage(err))
		return err
	}
	return b.sendPixCharge(cb.From.ID, charge)
}

func (b *Bot) sendPixCharge(tgID int64, charge *model.PixCharge) error {
	if charge.QRCodeBase64 != "" {
		if png, err := base64.StdEncoding.DecodeString(charge.QRCodeBase64); err == nil {
			photo := tgbotapi.NewPhoto(tgID, tgbotapi.FileBytes{Name: "pix.png", Bytes: png})
			photo.Caption = "Scan the QR code to pay via PIX."
			if _, err := b.api.Send(photo); err != nil {
				b.log.Warn().Err(err).Msg("qr code delivery failed")
			}
		}
	}
	b.reply(tgID, "Or use PIX copy & paste:\n\n"+charge.CopyPasteCode+"\n\nAccess is released automatically after the payment is confirmed.")
	return nil
}

func (b *Bot) cmdStatus(ctx context.Context, user *model.User) error {
	sub, err := b.subUC.ActiveForUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveSubscription) || errors.Is(err, domain.ErrNotFound) {
			b.reply(user.TelegramID, "You don't have an active subscription. Use /start to pick a plan.")
			return nil
		}
		b.reply(user.TelegramID, "Couldn't check your subscription right now. Try again shortly.")
		return err
	}
	if sub.EndAt == nil {
		b.reply(user.TelegramID, "Your subscription is active with lifetime access. 🎉")
		return nil
	}
	b.reply(user.TelegramID, fmt.Sprintf("Your subscription is active until %s.", sub.EndAt.Format("02/01/2006")))
	return nil
}

func (b *Bot) cmdCoupon(ctx context.Context, user *model.User, code string) error {
	if code == "" {
		b.reply(user.TelegramID, "Use: /cupom CODE")
		return nil
	}
	coupon, err := b.couponUC.ValidateCode(ctx, code)
	if err != nil {
		b.reply(user.TelegramID, couponErrorMessage(err))
		return nil
	}
	b.mu.Lock()
	b.pendingCoupon[user.TelegramID] = coupon.Code
	b.mu.Unlock()
	b.reply(user.TelegramID, fmt.Sprintf("Coupon %s accepted! It will be applied to your next purchase. Use /start to pick a plan.", coupon.Code))
	return nil
}

func (b *Bot) cmdReferral(ctx context.Context, user *model.User) error {
	code, err := b.refUC.EnsureCode(ctx, user)
	if err != nil {
		b.reply(user.TelegramID, "Couldn't generate your referral code right now. Try again shortly.")
		return err
	}
	link := fmt.Sprintf("https://t.me/%s?start=%s", b.cfg.Username, code)
	b.reply(user.TelegramID, fmt.Sprintf("Share your link and earn bonus days for every friend who subscribes:\n\n%s", link))
	return nil
}

func (b *Bot) cmdMyLinks(ctx context.Context, user *model.User) error {
	if _, err := b.subUC.ActiveForUser(ctx, user.ID); err != nil {
		b.reply(user.TelegramID, "You need an active subscription to receive invite links. Use /start to pick a plan.")
		return nil
	}
	summary, err := b.accessUC.GrantAccess(ctx, user.TelegramID)
	if err != nil {
		b.reply(user.TelegramID, "Couldn't generate your invite links right now. Try again shortly.")
		return err
	}
	if len(summary.Links) == 0 {
		b.reply(user.TelegramID, "You're already in all the groups. Nothing to do!")
		return nil
	}
	var sb strings.Builder
	sb.WriteString("Here are your invite links (valid for a limited time, single use):\n")
	for _, l := range summary.Links {
		fmt.Fprintf(&sb, "\n%s: %s", l.GroupTitle, l.URL)
	}
	b.reply(user.TelegramID, sb.String())
	return nil
}

func (b *Bot) cmdStats(ctx context.Context, user *model.User) error {
	if _, ok := b.adminIDs[user.TelegramID]; !ok {
		b.reply(user.TelegramID, "You are not authorized to use this command.")
		return nil
	}
	counts, err := b.subUC.CountByStatus(ctx)
	if err != nil {
		b.reply(user.TelegramID, "Failed to load stats.")
		return err
	}
	var sb strings.Builder
	sb.WriteString("Subscriptions by status:\n")
	for _, st := range []model.SubscriptionStatus{
		model.SubscriptionStatusPending,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusExtended,
		model.SubscriptionStatusExpired,
		model.SubscriptionStatusRevoked,
	} {
		fmt.Fprintf(&sb, "\n%s: %d", st, counts[st])
	}
	b.reply(user.TelegramID, sb.String())
	return nil
}

// cmdBroadcast queues a message to every user. The reply lands as soon
// as the recipient list is fixed; delivery continues in the background.
func (b *Bot) cmdBroadcast(ctx context.Context, user *model.User, text string) error {
	if _, ok := b.adminIDs[user.TelegramID]; !ok {
		b.reply(user.TelegramID, "You are not authorized to use this command.")
		return nil
	}
	if text == "" {
		b.reply(user.TelegramID, "Use: /broadcast your message")
		return nil
	}
	queued, err := b.bcastUC.Broadcast(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrBroadcastRunning) {
			b.reply(user.TelegramID, "A broadcast is already running. Wait for it to finish.")
			return nil
		}
		b.reply(user.TelegramID, "Couldn't start the broadcast. Try again shortly.")
		return err
	}
	b.reply(user.TelegramID, fmt.Sprintf("Broadcast queued for %d user(s).", queued))
	return nil
}

func (b *Bot) reply(tgID int64, text string) {
	msg := tgbotapi.NewMessage(tgID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("tg_id", tgID).Msg("reply delivery failed")
	}
}

func purchaseErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "That plan is not available anymore. Use /start to see the current plans."
	case errors.Is(err, domain.ErrSelfReferral):
		return "You can't use your own referral code."
	case errors.Is(err, domain.ErrReferralCodeNotFound):
		return "That referral code doesn't exist. Check it and try again."
	case errors.Is(err, domain.ErrCouponInactive),
		errors.Is(err, domain.ErrCouponNotStarted),
		errors.Is(err, domain.ErrCouponExpired),
		errors.Is(err, domain.ErrCouponExhausted):
		return couponErrorMessage(err)
	default:
		return "Couldn't start your purchase right now. Try again shortly."
	}
}

func couponErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrCouponNotStarted):
		return "This coupon is not valid yet."
	case errors.Is(err, domain.ErrCouponExpired):
		return "This coupon has expired."
	case errors.Is(err, domain.ErrCouponExhausted):
		return "This coupon has reached its usage limit."
	default:
		return "Invalid coupon code."
	}
}
