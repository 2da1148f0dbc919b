package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/metrics"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ----- payment webhook -----

type webhookPayload struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// handlePaymentWebhook acknowledges fast and processes out of band. The
// provider retries on anything but 2xx, and processing is idempotent, so a
// crash between ack and completion self-heals on the next delivery.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.IncWebhooksReceived("error")
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	paymentID := payload.Data.ID.String()
	if paymentID == "" {
		paymentID = r.URL.Query().Get("data.id")
	}
	if payload.Type != "" && payload.Type != "payment" {
		metrics.IncWebhooksReceived("ignored")
		w.WriteHeader(http.StatusOK)
		return
	}
	if paymentID == "" {
		metrics.IncWebhooksReceived("ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	go func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.payUC.HandleNotification(ctx, paymentID); err != nil {
			metrics.IncWebhooksReceived("error")
			s.log.Error().Err(err).Str("payment_id", paymentID).Msg("webhook processing failed")
		} else {
			metrics.IncWebhooksReceived("processed")
		}
		metrics.ObserveWebhookProcessing(time.Since(start).Seconds())
	}()

	w.WriteHeader(http.StatusOK)
}

// handleRunScheduler runs both sweeps on demand, authenticated by a shared
// secret. External cron services use this when the process has no reliable
// in-process timer (e.g. serverless hosting).
func (s *Server) handleRunScheduler(w http.ResponseWriter, r *http.Request) {
	hdr := r.Header.Get("Authorization")
	if s.schedulerSecret == "" ||
		subtle.ConstantTimeCompare([]byte(hdr), []byte("Bearer "+s.schedulerSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	reminded, err := s.sweepUC.SweepExpiringSoon(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("reminder sweep failed")
	}
	expired, err := s.sweepUC.SweepExpired(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("expiry sweep failed")
	}
	if expired > 0 {
		metrics.IncSubscriptionsExpired(expired)
	}
	if reminded > 0 {
		metrics.IncRemindersSent(reminded)
	}
	writeJSON(w, http.StatusOK, map[string]int{"reminded": reminded, "expired": expired})
}

// ----- admin API -----

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(s.apiKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session mint failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.subUC.CountByStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	tgID, err := strconv.ParseInt(chi.URLParam(r, "tgID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid telegram id")
		return
	}
	user, err := s.userUC.FindByTelegramID(r.Context(), tgID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	resp := map[string]interface{}{
		"id":            user.ID,
		"telegram_id":   user.TelegramID,
		"username":      user.Username,
		"first_name":    user.FirstName,
		"referral_code": user.ReferralCode,
		"registered_at": user.RegisteredAt,
	}
	if sub, err := s.subUC.ActiveForUser(r.Context(), user.ID); err == nil {
		resp["subscription"] = map[string]interface{}{
			"id":         sub.ID,
			"product_id": sub.ProductID,
			"status":     sub.Status,
			"start_at":   sub.StartAt,
			"end_at":     sub.EndAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type grantRequest struct {
	TelegramID int64  `json:"telegram_id"`
	ProductID  string `json:"product_id"`
	Note       string `json:"note"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	user, err := s.userUC.FindByTelegramID(r.Context(), req.TelegramID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	sub, err := s.subUC.GrantManual(r.Context(), user.ID, req.ProductID, req.Note)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "grant failed")
		return
	}

	// Best-effort: hand the user their invite links right away.
	if summary, err := s.accessUC.GrantAccess(r.Context(), user.TelegramID); err == nil {
		for _, link := range summary.Links {
			_ = s.chat.SendMessage(r.Context(), user.TelegramID, link.GroupTitle+": "+link.URL)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"subscription_id": sub.ID,
		"status":          sub.Status,
		"end_at":          sub.EndAt,
	})
}

type revokeRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Note       string `json:"note"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	user, err := s.userUC.FindByTelegramID(r.Context(), req.TelegramID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	revoked, err := s.subUC.Revoke(r.Context(), user.ID, req.Note)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "revoke failed")
		return
	}
	removed, err := s.accessUC.RevokeAccess(r.Context(), user.TelegramID)
	if err != nil {
		s.log.Error().Err(err).Int64("tg_id", user.TelegramID).Msg("revoke: access removal failed")
	}
	if removed > 0 {
		metrics.IncMembersRemoved(removed)
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked, "removed": removed})
}

type createCouponRequest struct {
	Code       string     `json:"code"`
	Type       string     `json:"type"`
	Value      int64      `json:"value"`
	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
	UsageLimit *int       `json:"usage_limit"`
}

func (s *Server) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	coupon, err := s.couponUC.Create(r.Context(), req.Code, model.DiscountType(req.Type), req.Value, req.ValidFrom, req.ValidUntil, req.UsageLimit)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "coupon code already exists")
			return
		}
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "invalid coupon")
			return
		}
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": coupon.ID, "code": coupon.Code})
}

func (s *Server) handleSetCouponActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if err := s.couponUC.SetActive(r.Context(), chi.URLParam(r, "code"), req.Active); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "coupon not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("all") == "true"
	list, err := s.couponUC.List(r.Context(), includeInactive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type broadcastRequest struct {
	Message string `json:"message"`
}

// handleBroadcast queues a mass message and answers as soon as the
// recipient list is fixed; delivery continues in the background and is
// observable through the progress endpoint.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	queued, err := s.bcastUC.Broadcast(r.Context(), req.Message)
	if err != nil {
		if errors.Is(err, domain.ErrBroadcastRunning) {
			writeError(w, http.StatusConflict, "a broadcast is already running")
			return
		}
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "message is empty")
			return
		}
		writeError(w, http.StatusInternalServerError, "broadcast failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (s *Server) handleBroadcastProgress(w http.ResponseWriter, r *http.Request) {
	p := s.bcastUC.Progress()
	resp := map[string]interface{}{
		"total":   p.Total,
		"sent":    p.Sent,
		"failed":  p.Failed,
		"running": p.Running,
	}
	if !p.StartedAt.IsZero() {
		resp["started_at"] = p.StartedAt
	}
	if !p.FinishedAt.IsZero() {
		resp["finished_at"] = p.FinishedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type addGroupRequest struct {
	ChatID int64  `json:"chat_id"`
	Title  string `json:"title"`
}

func (s *Server) handleAddGroup(w http.ResponseWriter, r *http.Request) {
	var req addGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	group, err := model.NewGroup(uuid.NewString(), req.ChatID, req.Title)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid group")
		return
	}
	if err := s.groups.Save(r.Context(), repository.NoTX, group); err != nil {
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": group.ID})
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	if err := s.groups.DeleteByChatID(r.Context(), repository.NoTX, chatID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	list, err := s.groups.ListAll(r.Context(), repository.NoTX)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}
