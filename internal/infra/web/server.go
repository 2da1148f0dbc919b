package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/adapter"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/usecase"
)

// Server hosts the payment webhook, the scheduler trigger and the admin API.
type Server struct {
	payUC    *usecase.PaymentUseCase
	sweepUC  *usecase.SweepUseCase
	subUC    *usecase.SubscriptionUseCase
	userUC   *usecase.UserUseCase
	couponUC *usecase.CouponUseCase
	accessUC *usecase.AccessUseCase
	bcastUC  *usecase.BroadcastUseCase
	groups   repository.GroupRepository
	chat     adapter.ChatProvider
	auth     *AuthManager

	apiKey          string
	schedulerSecret string
	log             *zerolog.Logger
}

func NewServer(
	payUC *usecase.PaymentUseCase,
	sweepUC *usecase.SweepUseCase,
	subUC *usecase.SubscriptionUseCase,
	userUC *usecase.UserUseCase,
	couponUC *usecase.CouponUseCase,
	accessUC *usecase.AccessUseCase,
	bcastUC *usecase.BroadcastUseCase,
	groups repository.GroupRepository,
	chat adapter.ChatProvider,
	auth *AuthManager,
	apiKey, schedulerSecret string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		payUC:           payUC,
		sweepUC:         sweepUC,
		subUC:           subUC,
		userUC:          userUC,
		couponUC:        couponUC,
		accessUC:        accessUC,
		bcastUC:         bcastUC,
		groups:          groups,
		chat:            chat,
		auth:            auth,
		apiKey:          apiKey,
		schedulerSecret: schedulerSecret,
		log:             &l,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhook/mercadopago", s.handlePaymentWebhook)
	r.Post("/webhook/run-scheduler", s.handleRunScheduler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.adminAuth)
			r.Get("/stats", s.handleStats)
			r.Get("/users/{tgID}", s.handleGetUser)
			r.Post("/subscriptions/grant", s.handleGrant)
			r.Post("/subscriptions/revoke", s.handleRevoke)
			r.Get("/coupons", s.handleListCoupons)
			r.Post("/coupons", s.handleCreateCoupon)
			r.Patch("/coupons/{code}", s.handleSetCouponActive)
			r.Post("/broadcast", s.handleBroadcast)
			r.Get("/broadcast", s.handleBroadcastProgress)
			r.Get("/groups", s.handleListGroups)
			r.Post("/groups", s.handleAddGroup)
			r.Delete("/groups/{chatID}", s.handleDeleteGroup)
		})
	})

	return r
}

// adminAuth accepts either the static API key or a minted session token.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if hdr := r.Header.Get("Authorization"); hdr != "" {
			parts := strings.SplitN(hdr, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") &&
				subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.apiKey)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		if _, err := s.auth.ParseFromRequest(r); err == nil {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// Run starts the HTTP server and shuts it down when ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
