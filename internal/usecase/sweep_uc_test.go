package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/adapter"
)

const testTrialProduct = "trial"

func newSweepUC(subs *memSubRepo, users *memUserRepo, audit *memAuditRepo, chat *mockChat, groups *memGroupRepo) *SweepUseCase {
	access := newAccessUC(groups, chat)
	uc := NewSweepUseCase(subs, users, audit, access, chat, 2, 3, testTrialProduct, newTestLogger())
	uc.now = fixedNow
	uc.sleep = func(time.Duration) {}
	return uc
}

func saveActiveSub(t *testing.T, subs *memSubRepo, id, userID, productID string, endAt *time.Time) {
	t.Helper()
	if err := subs.Save(context.Background(), nil, &model.Subscription{
		ID: id, UserID: userID, ProductID: productID, PaymentID: "pay-" + id,
		Status: model.SubscriptionStatusActive, EndAt: endAt,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSweepUseCase_SweepExpiringSoon(t *testing.T) {
	ctx := context.Background()

	t.Run("reminds only subscriptions inside the window", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, "u-soon", 100)
		seedUser(t, users, "u-later", 200)
		seedUser(t, users, "u-now", 300)
		subs := newMemSubRepo()
		inWindow := fixedNow().Add(60 * time.Hour) // 2.5 days out
		tooFar := fixedNow().AddDate(0, 0, 10)
		tooClose := fixedNow().Add(12 * time.Hour)
		saveActiveSub(t, subs, "sub-soon", "u-soon", "monthly", &inWindow)
		saveActiveSub(t, subs, "sub-later", "u-later", "monthly", &tooFar)
		saveActiveSub(t, subs, "sub-now", "u-now", "monthly", &tooClose)
		saveActiveSub(t, subs, "sub-life", "u-soon", "lifetime", nil)
		chat := newMockChat()

		uc := newSweepUC(subs, users, newMemAuditRepo(), chat, newMemGroupRepo())
		sent, err := uc.SweepExpiringSoon(ctx)
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if sent != 1 {
			t.Fatalf("expected 1 reminder, got %d", sent)
		}
		msgs := chat.sentMessages()
		if len(msgs) != 1 || !strings.Contains(msgs[0], inWindow.Format("02/01/2006")) {
			t.Errorf("unexpected reminder text: %v", msgs)
		}
	})

	t.Run("a rate-limited delivery gets one retry", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, "u-1", 100)
		subs := newMemSubRepo()
		end := fixedNow().Add(60 * time.Hour)
		saveActiveSub(t, subs, "sub-1", "u-1", "monthly", &end)

		chat := newMockChat()
		calls := 0
		chat.SendMessageFunc = func(_ context.Context, _ int64, _ string) error {
			calls++
			if calls == 1 {
				return &adapter.RateLimitedError{RetryAfter: time.Second}
			}
			return nil
		}
		uc := newSweepUC(subs, users, newMemAuditRepo(), chat, newMemGroupRepo())

		sent, err := uc.SweepExpiringSoon(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if sent != 1 || calls != 2 {
			t.Errorf("expected 1 reminder after 2 send attempts, got sent=%d calls=%d", sent, calls)
		}
	})

	t.Run("a failed delivery does not count or abort", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, "u-1", 100)
		seedUser(t, users, "u-2", 200)
		subs := newMemSubRepo()
		end := fixedNow().Add(60 * time.Hour)
		saveActiveSub(t, subs, "sub-1", "u-1", "monthly", &end)
		saveActiveSub(t, subs, "sub-2", "u-2", "monthly", &end)

		chat := newMockChat()
		chat.SendMessageFunc = func(_ context.Context, tgID int64, _ string) error {
			if tgID == 100 {
				return domain.ErrPermissionDenied
			}
			return nil
		}
		uc := newSweepUC(subs, users, newMemAuditRepo(), chat, newMemGroupRepo())

		sent, err := uc.SweepExpiringSoon(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if sent != 1 {
			t.Errorf("expected 1 delivered reminder, got %d", sent)
		}
	})
}

func TestSweepUseCase_SweepExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("expires past-due subscriptions and removes access", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, "u-1", 100)
		subs := newMemSubRepo()
		past := fixedNow().AddDate(0, 0, -1)
		saveActiveSub(t, subs, "sub-1", "u-1", "monthly", &past)
		chat := newMockChat()
		kicked := 0
		chat.KickMemberFunc = func(_ context.Context, _, _ int64) error { kicked++; return nil }
		audit := newMemAuditRepo()

		uc := newSweepUC(subs, users, audit, chat, newMemGroupRepo(testGroups(2)...))
		processed, err := uc.SweepExpired(ctx)
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if processed != 1 {
			t.Fatalf("expected 1 processed, got %d", processed)
		}
		if got := subs.get("sub-1"); got.Status != model.SubscriptionStatusExpired {
			t.Errorf("expected expired status, got %s", got.Status)
		}
		if kicked != 2 {
			t.Errorf("expected removal from both groups, got %d", kicked)
		}
		if entries := audit.byType(model.AuditSubscriptionExpired); len(entries) != 1 {
			t.Errorf("expected 1 expiry audit entry, got %d", len(entries))
		}
	})

	t.Run("status flips even when removal fails", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, "u-1", 100)
		subs := newMemSubRepo()
		past := fixedNow().AddDate(0, 0, -1)
		saveActiveSub(t, subs, "sub-1", "u-1", "monthly", &past)
		chat := newMockChat()
		chat.KickMemberFunc = func(_ context.Context, _, _ int64) error {
			return domain.ErrPermissionDenied
		}

		uc := newSweepUC(subs, users, newMemAuditRepo(), chat, newMemGroupRepo(testGroups(1)...))
		processed, err := uc.SweepExpired(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if processed != 1 {
			t.Fatalf("expected 1 processed, got %d", processed)
		}
		if got := subs.get("sub-1"); got.Status != model.SubscriptionStatusExpired {
			t.Errorf("subscription must not stay active behind a removal failure, got %s", got.Status)
		}
	})

	t.Run("trial and paid expiries get different messages", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, "u-trial", 100)
		seedUser(t, users, "u-paid", 200)
		subs := newMemSubRepo()
		past := fixedNow().AddDate(0, 0, -1)
		saveActiveSub(t, subs, "sub-trial", "u-trial", testTrialProduct, &past)
		saveActiveSub(t, subs, "sub-paid", "u-paid", "monthly", &past)
		chat := newMockChat()

		uc := newSweepUC(subs, users, newMemAuditRepo(), chat, newMemGroupRepo())
		if _, err := uc.SweepExpired(ctx); err != nil {
			t.Fatal(err)
		}

		var sawTrial, sawPaid bool
		for _, msg := range chat.sentMessages() {
			if strings.Contains(msg, "trial period has ended") {
				sawTrial = true
			}
			if strings.Contains(msg, "/renovar") {
				sawPaid = true
			}
		}
		if !sawTrial || !sawPaid {
			t.Errorf("expected both message variants, trial=%v paid=%v", sawTrial, sawPaid)
		}
	})

	t.Run("a second run has nothing left to do", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, "u-1", 100)
		subs := newMemSubRepo()
		past := fixedNow().AddDate(0, 0, -1)
		saveActiveSub(t, subs, "sub-1", "u-1", "monthly", &past)

		uc := newSweepUC(subs, users, newMemAuditRepo(), newMockChat(), newMemGroupRepo())
		if processed, err := uc.SweepExpired(ctx); err != nil || processed != 1 {
			t.Fatalf("first run: processed=%d err=%v", processed, err)
		}
		if processed, err := uc.SweepExpired(ctx); err != nil || processed != 0 {
			t.Errorf("second run: processed=%d err=%v", processed, err)
		}
	})

	t.Run("lifetime rows are never swept", func(t *testing.T) {
		users := newMemUserRepo()
		seedUser(t, users, "u-1", 100)
		subs := newMemSubRepo()
		saveActiveSub(t, subs, "sub-life", "u-1", "lifetime", nil)

		uc := newSweepUC(subs, users, newMemAuditRepo(), newMockChat(), newMemGroupRepo())
		processed, err := uc.SweepExpired(ctx)
		if err != nil || processed != 0 {
			t.Errorf("expected nothing processed, got %d, %v", processed, err)
		}
		if got := subs.get("sub-life"); got.Status != model.SubscriptionStatusActive {
			t.Errorf("lifetime row changed status: %s", got.Status)
		}
	})
}
