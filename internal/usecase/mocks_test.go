package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/adapter"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// mockTxManager runs the callback without a real transaction.
type mockTxManager struct {
	withTxErr error
}

func newMockTxManager() *mockTxManager { return &mockTxManager{} }

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.withTxErr != nil {
		return m.withTxErr
	}
	return fn(ctx, nil)
}

// memUserRepo is a small in-memory implementation used by unit tests.
type memUserRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.User // by internal ID
	saveErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{store: make(map[string]*model.User)}
}

func (m *memUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if u.TelegramID == tgID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) FindByReferralCode(ctx context.Context, tx repository.Tx, code string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if u.ReferralCode == code && code != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) SetReferralCode(ctx context.Context, tx repository.Tx, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.ReferralCode = code
	return nil
}

func (m *memUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), nil
}

func (m *memUserRepo) ListTelegramIDs(ctx context.Context, tx repository.Tx) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int64
	for _, u := range m.store {
		out = append(out, u.TelegramID)
	}
	return out, nil
}

// memSubRepo provides in-memory subscriptions for tests.
type memSubRepo struct {
	mu   sync.RWMutex
	subs map[string]*model.Subscription // by subscription ID

	// overridable hooks
	ActivatePendingFunc func(ctx context.Context, tx repository.Tx, id string, startAt time.Time, endAt *time.Time) (bool, error)
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{subs: make(map[string]*model.Subscription)}
}

func (m *memSubRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *memSubRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.PaymentID == paymentID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID, excludeID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *model.Subscription
	for _, s := range m.subs {
		if s.UserID != userID || s.Status != model.SubscriptionStatusActive {
			continue
		}
		if excludeID != "" && s.ID == excludeID {
			continue
		}
		if best == nil {
			best = s
			continue
		}
		// Lifetime coverage sorts latest.
		if s.EndAt == nil || (best.EndAt != nil && s.EndAt.After(*best.EndAt)) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memSubRepo) ActivatePending(ctx context.Context, tx repository.Tx, id string, startAt time.Time, endAt *time.Time) (bool, error) {
	if m.ActivatePendingFunc != nil {
		return m.ActivatePendingFunc(ctx, tx, id, startAt, endAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.Status != model.SubscriptionStatusPending {
		return false, nil
	}
	s.Status = model.SubscriptionStatusActive
	st := startAt
	s.StartAt = &st
	s.EndAt = endAt
	return true, nil
}

func (m *memSubRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus, endAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = status
	s.EndAt = endAt
	return nil
}

func (m *memSubRepo) UpdateEndDate(ctx context.Context, tx repository.Tx, id string, endAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	e := endAt
	s.EndAt = &e
	return nil
}

func (m *memSubRepo) RevokeActiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time, note string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.UserID == userID && s.Status == model.SubscriptionStatusActive {
			s.Status = model.SubscriptionStatusRevoked
			e := now
			s.EndAt = &e
			s.AdminNote = note
			n++
		}
	}
	return n, nil
}

func (m *memSubRepo) FindExpiring(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Status != model.SubscriptionStatusActive || s.EndAt == nil {
			continue
		}
		if s.EndAt.After(from) && !s.EndAt.After(to) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubRepo) FindExpired(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Status == model.SubscriptionStatusActive && s.EndAt != nil && s.EndAt.Before(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[model.SubscriptionStatus]int)
	for _, s := range m.subs {
		counts[s.Status]++
	}
	return counts, nil
}

func (m *memSubRepo) LockUser(ctx context.Context, tx repository.Tx, userID string) error {
	return nil
}

func (m *memSubRepo) get(id string) *model.Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// memProductRepo holds the product catalog.
type memProductRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Product
}

func newMemProductRepo() *memProductRepo {
	return &memProductRepo{store: make(map[string]*model.Product)}
}

func (m *memProductRepo) Save(ctx context.Context, tx repository.Tx, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memProductRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProductRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Product
	for _, p := range m.store {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// memCouponRepo holds coupons with an atomic usage counter.
type memCouponRepo struct {
	mu    sync.Mutex
	store map[string]*model.Coupon
}

func newMemCouponRepo() *memCouponRepo {
	return &memCouponRepo{store: make(map[string]*model.Coupon)}
}

func (m *memCouponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *memCouponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.store {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memCouponRepo) IncrementUsage(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return false, nil
	}
	c.UsageCount++
	return true, nil
}

func (m *memCouponRepo) SetActive(ctx context.Context, tx repository.Tx, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Active = active
	return nil
}

func (m *memCouponRepo) ListAll(ctx context.Context, tx repository.Tx, includeInactive bool) ([]*model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Coupon
	for _, c := range m.store {
		if !c.Active && !includeInactive {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// memGroupRepo holds configured membership targets.
type memGroupRepo struct {
	mu     sync.RWMutex
	groups []*model.Group
}

func newMemGroupRepo(groups ...*model.Group) *memGroupRepo {
	return &memGroupRepo{groups: groups}
}

func (m *memGroupRepo) Save(ctx context.Context, tx repository.Tx, g *model.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.groups = append(m.groups, &cp)
	return nil
}

func (m *memGroupRepo) DeleteByChatID(ctx context.Context, tx repository.Tx, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, g := range m.groups {
		if g.ChatID == chatID {
			m.groups = append(m.groups[:i], m.groups[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memGroupRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Group, len(m.groups))
	for i, g := range m.groups {
		cp := *g
		out[i] = &cp
	}
	return out, nil
}

// memReferralRepo enforces pair uniqueness like the real store.
type memReferralRepo struct {
	mu    sync.Mutex
	store map[string]*model.Referral // by ID
}

func newMemReferralRepo() *memReferralRepo {
	return &memReferralRepo{store: make(map[string]*model.Referral)}
}

func (m *memReferralRepo) Create(ctx context.Context, tx repository.Tx, r *model.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.ReferrerID == r.ReferrerID && existing.ReferredID == r.ReferredID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *memReferralRepo) FindByPair(ctx context.Context, tx repository.Tx, referrerID, referredID string) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.store {
		if r.ReferrerID == referrerID && r.ReferredID == referredID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memReferralRepo) MarkRewardGranted(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok || r.RewardGranted {
		return false, nil
	}
	r.RewardGranted = true
	return true, nil
}

// memAuditRepo records entries for assertions.
type memAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
}

func newMemAuditRepo() *memAuditRepo { return &memAuditRepo{} }

func (m *memAuditRepo) Append(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAuditRepo) byType(typ string) []*model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AuditEntry
	for _, e := range m.entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// memChargeRepo holds payment correlation records.
type memChargeRepo struct {
	mu    sync.Mutex
	store map[string]*model.PaymentCharge
}

func newMemChargeRepo() *memChargeRepo {
	return &memChargeRepo{store: make(map[string]*model.PaymentCharge)}
}

func (m *memChargeRepo) Save(ctx context.Context, tx repository.Tx, c *model.PaymentCharge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.store[c.PaymentID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *c
	m.store[c.PaymentID] = &cp
	return nil
}

func (m *memChargeRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.PaymentCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// mockChat is a ChatProvider with overridable behavior per call.
type mockChat struct {
	MemberStatusFunc     func(ctx context.Context, chatID, userID int64) (adapter.MemberStatus, error)
	CreateInviteLinkFunc func(ctx context.Context, chatID int64, ttl time.Duration, memberLimit int) (string, error)
	KickMemberFunc       func(ctx context.Context, chatID, userID int64) error
	SendMessageFunc      func(ctx context.Context, userID int64, text string) error

	mu   sync.Mutex
	sent []string
}

func newMockChat() *mockChat { return &mockChat{} }

func (m *mockChat) MemberStatus(ctx context.Context, chatID, userID int64) (adapter.MemberStatus, error) {
	if m.MemberStatusFunc != nil {
		return m.MemberStatusFunc(ctx, chatID, userID)
	}
	return adapter.MemberStatusNone, nil
}

func (m *mockChat) CreateInviteLink(ctx context.Context, chatID int64, ttl time.Duration, memberLimit int) (string, error) {
	if m.CreateInviteLinkFunc != nil {
		return m.CreateInviteLinkFunc(ctx, chatID, ttl, memberLimit)
	}
	return "https://t.me/+invite", nil
}

func (m *mockChat) KickMember(ctx context.Context, chatID, userID int64) error {
	if m.KickMemberFunc != nil {
		return m.KickMemberFunc(ctx, chatID, userID)
	}
	return nil
}

func (m *mockChat) SendMessage(ctx context.Context, userID int64, text string) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, userID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return nil
}

func (m *mockChat) sentMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// mockGateway is a PaymentGateway stub.
type mockGateway struct {
	CreateChargeFunc func(ctx context.Context, idempotencyKey string, amountCents int64, description, correlationID string) (*model.PixCharge, error)
	ChargeStatusFunc func(ctx context.Context, paymentID string) (string, error)
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) CreateCharge(ctx context.Context, idempotencyKey string, amountCents int64, description, correlationID string) (*model.PixCharge, error) {
	if m.CreateChargeFunc != nil {
		return m.CreateChargeFunc(ctx, idempotencyKey, amountCents, description, correlationID)
	}
	return &model.PixCharge{PaymentID: "pay-1", QRCodeBase64: "", CopyPasteCode: "pix-copy-paste"}, nil
}

func (m *mockGateway) ChargeStatus(ctx context.Context, paymentID string) (string, error) {
	if m.ChargeStatusFunc != nil {
		return m.ChargeStatusFunc(ctx, paymentID)
	}
	return adapter.ChargeStatusApproved, nil
}

// mockLocker hands out locks unconditionally unless told otherwise.
type mockLocker struct {
	tryLockErr error
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.tryLockErr != nil {
		return "", m.tryLockErr
	}
	return "token", nil
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error { return nil }
