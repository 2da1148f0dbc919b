package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/config"
	pg "github.com/biluextraterrestre/telegram-payment-bot/internal/infra/db/postgres"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/logging"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/metrics"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/payment"
	red "github.com/biluextraterrestre/telegram-payment-bot/internal/infra/redis"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/sched"
	tele "github.com/biluextraterrestre/telegram-payment-bot/internal/infra/telegram"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/web"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	productRepo := pg.NewProductRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	couponRepo := pg.NewCouponRepo(pool)
	groupRepo := pg.NewGroupRepo(pool)
	referralRepo := pg.NewReferralRepo(pool)
	auditRepo := pg.NewAuditLogRepo(pool)
	chargeRepo := pg.NewChargeRepo(pool)

	// ---- Telegram API ----
	botAPI, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram")
	}
	chatProvider := tele.NewChatProvider(botAPI)

	// ---- Payment gateway ----
	gateway := payment.NewMercadoPagoGateway(&cfg.Payment.MercadoPago, logger)

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, productRepo, userRepo, auditRepo, txManager, logger)
	accessUC := usecase.NewAccessUseCase(groupRepo, chatProvider, cfg.Access.InviteTTL, cfg.Access.InterCallDelay, logger)
	couponUC := usecase.NewCouponUseCase(couponRepo, logger)
	refUC := usecase.NewReferralUseCase(referralRepo, subRepo, userRepo, auditRepo, txManager, cfg.Referral.RewardDays, logger)
	payUC := usecase.NewPaymentUseCase(
		userUC, subUC, couponUC, refUC, accessUC,
		productRepo, couponRepo, chargeRepo, auditRepo, txManager,
		gateway, chatProvider, locker, cfg.Bot.AdminIDs, logger,
	)
	bcastUC := usecase.NewBroadcastUseCase(userRepo, chatProvider, cfg.Broadcast.InterSendDelay, cfg.Bot.AdminIDs, logger)
	sweepUC := usecase.NewSweepUseCase(
		subRepo, userRepo, auditRepo, accessUC, chatProvider,
		cfg.Scheduler.ReminderFromDays, cfg.Scheduler.ReminderToDays,
		cfg.Products.TrialID, logger,
	)

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- Telegram bot ----
	bot := tele.NewBot(botAPI, &cfg.Bot, userUC, payUC, subUC, accessUC, couponUC, refUC, bcastUC, productRepo, rateLimiter, logger)
	go func() {
		if err := bot.StartPolling(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- HTTP server ----
	authMgr := web.NewAuthManager(cfg.Server.SessionSecret, !cfg.Runtime.Dev, 30*time.Minute)
	server := web.NewServer(
		payUC, sweepUC, subUC, userUC, couponUC, accessUC, bcastUC,
		groupRepo, chatProvider, authMgr,
		cfg.Server.AdminAPIKey, cfg.Server.SchedulerSecret, logger,
	)
	go func() {
		if err := server.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Background workers ----
	expiryWorker := sched.NewExpiryWorker(cfg.Scheduler.SweepInterval, sweepUC, subUC, logger)
	go func() { _ = expiryWorker.Run(ctx) }()
	reminderWorker := sched.NewReminderWorker(cfg.Scheduler.SweepInterval, sweepUC, logger)
	go func() { _ = reminderWorker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	bot.StopPolling()
}
