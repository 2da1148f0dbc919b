package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func days(n int) *int { return &n }

func seedUser(t *testing.T, users *memUserRepo, id string, tgID int64) *model.User {
	t.Helper()
	u, err := model.NewUser(id, tgID, "someone", "Someone")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := users.Save(context.Background(), nil, u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

func seedProduct(t *testing.T, products *memProductRepo, id string, priceCents int64, durationDays *int) *model.Product {
	t.Helper()
	p, err := model.NewProduct(id, "Plan "+id, priceCents, durationDays)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := products.Save(context.Background(), nil, p); err != nil {
		t.Fatalf("save product: %v", err)
	}
	return p
}

func newSubUC(subs *memSubRepo, products *memProductRepo, users *memUserRepo, audit *memAuditRepo) *SubscriptionUseCase {
	uc := NewSubscriptionUseCase(subs, products, users, audit, newMockTxManager(), newTestLogger())
	uc.now = fixedNow
	return uc
}

func TestSubscriptionUseCase_Activate(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh activation sets the full product duration from now", func(t *testing.T) {
		subs := newMemSubRepo()
		products := newMemProductRepo()
		users := newMemUserRepo()
		audit := newMemAuditRepo()
		seedUser(t, users, "u-1", 111)
		seedProduct(t, products, "monthly", 4990, days(30))
		uc := newSubUC(subs, products, users, audit)

		pending, err := uc.CreatePending(ctx, nil, "u-1", "monthly", "pay-1", 4990, 4990, "")
		if err != nil {
			t.Fatalf("create pending: %v", err)
		}

		res, err := uc.Activate(ctx, "pay-1")
		if err != nil {
			t.Fatalf("activate: %v", err)
		}
		if res.Replayed || res.Extended {
			t.Errorf("expected plain activation, got replayed=%v extended=%v", res.Replayed, res.Extended)
		}

		got := subs.get(pending.ID)
		if got.Status != model.SubscriptionStatusActive {
			t.Fatalf("expected active, got %s", got.Status)
		}
		wantEnd := fixedNow().AddDate(0, 0, 30)
		if got.EndAt == nil || !got.EndAt.Equal(wantEnd) {
			t.Errorf("expected end %v, got %v", wantEnd, got.EndAt)
		}
		if entries := audit.byType(model.AuditSubscriptionActivated); len(entries) != 1 {
			t.Errorf("expected 1 activation audit entry, got %d", len(entries))
		}
	})

	t.Run("renewal stacks on the prior end date and marks it extended", func(t *testing.T) {
		subs := newMemSubRepo()
		products := newMemProductRepo()
		users := newMemUserRepo()
		audit := newMemAuditRepo()
		seedUser(t, users, "u-1", 111)
		seedProduct(t, products, "monthly", 4990, days(30))
		uc := newSubUC(subs, products, users, audit)

		prevEnd := fixedNow().AddDate(0, 0, 10)
		prev := &model.Subscription{
			ID: "sub-prev", UserID: "u-1", ProductID: "monthly", PaymentID: "pay-0",
			Status: model.SubscriptionStatusActive, EndAt: &prevEnd,
		}
		if err := subs.Save(ctx, nil, prev); err != nil {
			t.Fatal(err)
		}

		pending, err := uc.CreatePending(ctx, nil, "u-1", "monthly", "pay-2", 4990, 4990, "")
		if err != nil {
			t.Fatal(err)
		}

		res, err := uc.Activate(ctx, "pay-2")
		if err != nil {
			t.Fatalf("activate: %v", err)
		}
		if !res.Extended {
			t.Error("expected extended activation")
		}

		got := subs.get(pending.ID)
		wantEnd := prevEnd.AddDate(0, 0, 30)
		if got.EndAt == nil || !got.EndAt.Equal(wantEnd) {
			t.Errorf("expected stacked end %v, got %v", wantEnd, got.EndAt)
		}
		if subs.get("sub-prev").Status != model.SubscriptionStatusExtended {
			t.Error("expected prior row to be marked extended")
		}
		if entries := audit.byType(model.AuditSubscriptionExtended); len(entries) != 1 {
			t.Errorf("expected 1 extension audit entry, got %d", len(entries))
		}
	})

	t.Run("renewal after a lapse starts from now, not the stale end date", func(t *testing.T) {
		subs := newMemSubRepo()
		products := newMemProductRepo()
		users := newMemUserRepo()
		audit := newMemAuditRepo()
		seedUser(t, users, "u-1", 111)
		seedProduct(t, products, "monthly", 4990, days(30))
		uc := newSubUC(subs, products, users, audit)

		// Active row whose end date is already behind the clock; the sweep
		// just hasn't flipped it yet.
		staleEnd := fixedNow().AddDate(0, 0, -5)
		if err := subs.Save(ctx, nil, &model.Subscription{
			ID: "sub-stale", UserID: "u-1", ProductID: "monthly", PaymentID: "pay-0",
			Status: model.SubscriptionStatusActive, EndAt: &staleEnd,
		}); err != nil {
			t.Fatal(err)
		}

		pending, err := uc.CreatePending(ctx, nil, "u-1", "monthly", "pay-3", 4990, 4990, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := uc.Activate(ctx, "pay-3"); err != nil {
			t.Fatal(err)
		}

		got := subs.get(pending.ID)
		wantEnd := fixedNow().AddDate(0, 0, 30)
		if got.EndAt == nil || !got.EndAt.Equal(wantEnd) {
			t.Errorf("expected end %v, got %v", wantEnd, got.EndAt)
		}
	})

	t.Run("lifetime product activates with no end date", func(t *testing.T) {
		subs := newMemSubRepo()
		products := newMemProductRepo()
		users := newMemUserRepo()
		audit := newMemAuditRepo()
		seedUser(t, users, "u-1", 111)
		seedProduct(t, products, "lifetime", 29990, nil)
		uc := newSubUC(subs, products, users, audit)

		pending, err := uc.CreatePending(ctx, nil, "u-1", "lifetime", "pay-4", 29990, 29990, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := uc.Activate(ctx, "pay-4"); err != nil {
			t.Fatal(err)
		}
		if got := subs.get(pending.ID); got.EndAt != nil {
			t.Errorf("expected lifetime (nil end), got %v", got.EndAt)
		}
	})

	t.Run("duplicate notification is a replayed no-op", func(t *testing.T) {
		subs := newMemSubRepo()
		products := newMemProductRepo()
		users := newMemUserRepo()
		audit := newMemAuditRepo()
		seedUser(t, users, "u-1", 111)
		seedProduct(t, products, "monthly", 4990, days(30))
		uc := newSubUC(subs, products, users, audit)

		pending, err := uc.CreatePending(ctx, nil, "u-1", "monthly", "pay-5", 4990, 4990, "")
		if err != nil {
			t.Fatal(err)
		}
		first, err := uc.Activate(ctx, "pay-5")
		if err != nil {
			t.Fatal(err)
		}
		second, err := uc.Activate(ctx, "pay-5")
		if err != nil {
			t.Fatalf("replay must not error: %v", err)
		}
		if !second.Replayed {
			t.Error("expected replayed result on duplicate activation")
		}
		if got := subs.get(pending.ID); !got.EndAt.Equal(*first.Subscription.EndAt) {
			t.Errorf("replay must not move the end date: %v vs %v", got.EndAt, first.Subscription.EndAt)
		}
		if entries := audit.byType(model.AuditSubscriptionActivated); len(entries) != 1 {
			t.Errorf("expected exactly 1 activation audit entry, got %d", len(entries))
		}
	})

	t.Run("lost conditional update reports a replay instead of double-activating", func(t *testing.T) {
		subs := newMemSubRepo()
		products := newMemProductRepo()
		users := newMemUserRepo()
		audit := newMemAuditRepo()
		seedUser(t, users, "u-1", 111)
		seedProduct(t, products, "monthly", 4990, days(30))
		uc := newSubUC(subs, products, users, audit)

		if _, err := uc.CreatePending(ctx, nil, "u-1", "monthly", "pay-6", 4990, 4990, ""); err != nil {
			t.Fatal(err)
		}
		subs.ActivatePendingFunc = func(_ context.Context, _ repository.Tx, _ string, _ time.Time, _ *time.Time) (bool, error) {
			return false, nil // concurrent delivery won
		}

		res, err := uc.Activate(ctx, "pay-6")
		if err != nil {
			t.Fatalf("lost race must not error: %v", err)
		}
		if !res.Replayed {
			t.Error("expected replayed result when the conditional update loses")
		}
	})

	t.Run("unknown payment id fails", func(t *testing.T) {
		subs := newMemSubRepo()
		uc := newSubUC(subs, newMemProductRepo(), newMemUserRepo(), newMemAuditRepo())
		if _, err := uc.Activate(ctx, "pay-missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSubscriptionUseCase_Revoke(t *testing.T) {
	ctx := context.Background()
	subs := newMemSubRepo()
	products := newMemProductRepo()
	users := newMemUserRepo()
	audit := newMemAuditRepo()
	seedUser(t, users, "u-1", 111)
	uc := newSubUC(subs, products, users, audit)

	end := fixedNow().AddDate(0, 0, 20)
	if err := subs.Save(ctx, nil, &model.Subscription{
		ID: "sub-1", UserID: "u-1", ProductID: "monthly", PaymentID: "pay-1",
		Status: model.SubscriptionStatusActive, EndAt: &end,
	}); err != nil {
		t.Fatal(err)
	}

	n, err := uc.Revoke(ctx, "u-1", "chargeback")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked row, got %d", n)
	}
	got := subs.get("sub-1")
	if got.Status != model.SubscriptionStatusRevoked {
		t.Errorf("expected revoked_by_admin, got %s", got.Status)
	}
	if got.AdminNote != "chargeback" {
		t.Errorf("expected note to be recorded, got %q", got.AdminNote)
	}

	// Terminal rows stay put: a second revoke finds nothing.
	n, err = uc.Revoke(ctx, "u-1", "again")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 on second revoke, got %d", n)
	}
}

func TestSubscriptionUseCase_GrantManual(t *testing.T) {
	ctx := context.Background()
	subs := newMemSubRepo()
	products := newMemProductRepo()
	users := newMemUserRepo()
	audit := newMemAuditRepo()
	seedUser(t, users, "u-1", 111)
	seedProduct(t, products, "monthly", 4990, days(30))
	uc := newSubUC(subs, products, users, audit)

	prevEnd := fixedNow().AddDate(0, 0, 5)
	if err := subs.Save(ctx, nil, &model.Subscription{
		ID: "sub-prev", UserID: "u-1", ProductID: "monthly", PaymentID: "pay-0",
		Status: model.SubscriptionStatusActive, EndAt: &prevEnd,
	}); err != nil {
		t.Fatal(err)
	}

	sub, err := uc.GrantManual(ctx, "u-1", "monthly", "vip comp")
	if err != nil {
		t.Fatalf("grant manual: %v", err)
	}
	if sub.Status != model.SubscriptionStatusActive {
		t.Fatalf("expected active grant, got %s", sub.Status)
	}
	if sub.FinalCents != 0 {
		t.Errorf("manual grant must be free, got %d", sub.FinalCents)
	}
	wantEnd := prevEnd.AddDate(0, 0, 30)
	if sub.EndAt == nil || !sub.EndAt.Equal(wantEnd) {
		t.Errorf("expected stacked end %v, got %v", wantEnd, sub.EndAt)
	}
	if subs.get("sub-prev").Status != model.SubscriptionStatusExtended {
		t.Error("expected prior row to be marked extended")
	}
	if entries := audit.byType(model.AuditManualGrant); len(entries) != 1 {
		t.Errorf("expected 1 manual grant audit entry, got %d", len(entries))
	}
}
