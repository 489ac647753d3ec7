package promotion

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront-promotions/internal/domain/discount"
)

// --- Mock implementations ---

type mockRuleRepo struct {
	mu        sync.Mutex
	automatic []discount.Rule
	coupons   map[string]discount.Rule
	listErr   error
	findErr   error
	consume   map[string]int
	consumeFn func(ruleID string) error
	listedAt  time.Time
}

func (m *mockRuleRepo) ListAutomatic(_ context.Context, _ string, now time.Time) ([]discount.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listedAt = now
	return m.automatic, m.listErr
}

func (m *mockRuleRepo) FindByCode(_ context.Context, _ string, code string) (*discount.Rule, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	r, ok := m.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, ErrCouponNotFound
	}
	return &r, nil
}

func (m *mockRuleRepo) ConsumeUsage(_ context.Context, _ string, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consume == nil {
		m.consume = make(map[string]int)
	}
	m.consume[ruleID]++
	if m.consumeFn != nil {
		return m.consumeFn(ruleID)
	}
	return nil
}

type mockMembers struct {
	members map[string]bool
	err     error
}

func (m *mockMembers) IsMember(_ context.Context, _ string, customerID string) (bool, error) {
	return m.members[customerID], m.err
}

// --- Helpers ---

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestService(t *testing.T, rules RuleRepository, members MemberResolver) *Service {
	t.Helper()
	lg := zaptest.NewLogger(t, zaptest.WrapOptions(zap.Development()))
	svc, err := NewService(rules, members, discount.NewEngine(discount.Config{}, lg), Options{
		Logger: lg,
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc
}

func cart() []discount.CartLine {
	return []discount.CartLine{
		{ProductID: "p1", CategoryID: "shoes", UnitPrice: d("50"), Quantity: 2},
	}
}

// --- Tests ---

func TestQuote_AutomaticRules(t *testing.T) {
	repo := &mockRuleRepo{automatic: []discount.Rule{
		{ID: "r1", Kind: discount.KindPercentage, Scope: discount.ScopeAll, Value: d("10"), Stackable: true},
	}}
	svc := newTestService(t, repo, &mockMembers{})

	q, err := svc.Quote(context.Background(), QuoteRequest{TenantID: "t1", Lines: cart(), ShippingAmount: d("5")})
	require.NoError(t, err)

	assert.Equal(t, fixedNow, q.At)
	assert.Equal(t, fixedNow, repo.listedAt)
	assert.True(t, d("10").Equal(q.Result.DiscountTotal))
	assert.True(t, d("90").Equal(q.Result.FinalTotal))
	assert.True(t, d("5").Equal(q.Result.ShippingTotal))
}

func TestQuote_CouponAndMembership(t *testing.T) {
	repo := &mockRuleRepo{
		automatic: []discount.Rule{
			{ID: "members", Kind: discount.KindFreeShipping, Scope: discount.ScopeMember, Stackable: true},
		},
		coupons: map[string]discount.Rule{
			"SAVE5": {ID: "c1", Code: "SAVE5", Kind: discount.KindFixedAmount, Scope: discount.ScopeAll, Value: d("5")},
		},
	}
	svc := newTestService(t, repo, &mockMembers{members: map[string]bool{"alice": true}})

	q, err := svc.Quote(context.Background(), QuoteRequest{
		TenantID:       "t1",
		CustomerID:     "alice",
		Lines:          cart(),
		CouponCode:     "save5",
		ShippingAmount: d("5"),
	})
	require.NoError(t, err)

	assert.True(t, q.Result.FreeShipping)
	coupon, ok := q.Result.CouponApplied()
	require.True(t, ok)
	assert.Equal(t, "c1", coupon.RuleID)
	assert.True(t, d("5").Equal(q.Result.DiscountTotal))
	assert.Empty(t, repo.consume, "quoting must not consume usage")
}

func TestQuote_GuestSkipsMembership(t *testing.T) {
	repo := &mockRuleRepo{automatic: []discount.Rule{
		{ID: "members", Kind: discount.KindPercentage, Scope: discount.ScopeMember, Value: d("10")},
	}}
	svc := newTestService(t, repo, &mockMembers{err: errors.New("must not be called")})

	q, err := svc.Quote(context.Background(), QuoteRequest{TenantID: "t1", Lines: cart()})
	require.NoError(t, err)
	require.Len(t, q.Result.Rejections, 1)
	assert.ErrorIs(t, q.Result.Rejections[0], discount.ErrMembersOnly)
}

func TestQuote_UnknownCoupon(t *testing.T) {
	svc := newTestService(t, &mockRuleRepo{}, &mockMembers{})

	q, err := svc.Quote(context.Background(), QuoteRequest{TenantID: "t1", Lines: cart(), CouponCode: "missing"})
	require.NoError(t, err)
	assert.ErrorIs(t, q.Result.CouponError(), discount.ErrCouponNotFound)
	assert.True(t, q.Result.DiscountTotal.IsZero())
}

func TestQuote_RepositoryErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		repo    *mockRuleRepo
		members *mockMembers
		req     QuoteRequest
	}{
		{
			name:    "list automatic",
			repo:    &mockRuleRepo{listErr: boom},
			members: &mockMembers{},
			req:     QuoteRequest{TenantID: "t1", Lines: cart()},
		},
		{
			name:    "find coupon",
			repo:    &mockRuleRepo{findErr: boom},
			members: &mockMembers{},
			req:     QuoteRequest{TenantID: "t1", Lines: cart(), CouponCode: "X"},
		},
		{
			name:    "membership",
			repo:    &mockRuleRepo{},
			members: &mockMembers{err: boom},
			req:     QuoteRequest{TenantID: "t1", Lines: cart(), CustomerID: "bob"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.repo, tt.members)

			_, err := svc.Quote(context.Background(), tt.req)
			require.ErrorIs(t, err, boom)
		})
	}
}

func TestCommit(t *testing.T) {
	coupons := map[string]discount.Rule{
		"ONCE": {ID: "c1", Code: "ONCE", Kind: discount.KindFixedAmount, Scope: discount.ScopeAll, Value: d("5"), UsageLimit: 1},
	}

	t.Run("consumes applied coupon once", func(t *testing.T) {
		repo := &mockRuleRepo{coupons: coupons}
		svc := newTestService(t, repo, &mockMembers{})
		q, err := svc.Quote(context.Background(), QuoteRequest{TenantID: "t1", Lines: cart(), CouponCode: "once"})
		require.NoError(t, err)

		require.NoError(t, svc.Commit(context.Background(), q))
		assert.Equal(t, map[string]int{"c1": 1}, repo.consume)
	})

	t.Run("no coupon is a no-op", func(t *testing.T) {
		repo := &mockRuleRepo{}
		svc := newTestService(t, repo, &mockMembers{})
		q, err := svc.Quote(context.Background(), QuoteRequest{TenantID: "t1", Lines: cart()})
		require.NoError(t, err)

		require.NoError(t, svc.Commit(context.Background(), q))
		assert.Empty(t, repo.consume)
	})

	t.Run("exhausted between quote and commit", func(t *testing.T) {
		repo := &mockRuleRepo{coupons: coupons, consumeFn: func(string) error { return ErrUsageExhausted }}
		svc := newTestService(t, repo, &mockMembers{})
		q, err := svc.Quote(context.Background(), QuoteRequest{TenantID: "t1", Lines: cart(), CouponCode: "ONCE"})
		require.NoError(t, err)

		err = svc.Commit(context.Background(), q)
		require.ErrorIs(t, err, ErrCouponUnavailable)
		assert.NotErrorIs(t, err, ErrUsageExhausted)
	})

	t.Run("storage failure", func(t *testing.T) {
		boom := errors.New("boom")
		repo := &mockRuleRepo{coupons: coupons, consumeFn: func(string) error { return boom }}
		svc := newTestService(t, repo, &mockMembers{})
		q, err := svc.Quote(context.Background(), QuoteRequest{TenantID: "t1", Lines: cart(), CouponCode: "ONCE"})
		require.NoError(t, err)

		err = svc.Commit(context.Background(), q)
		require.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrCouponUnavailable)
	})
}

func TestRequote(t *testing.T) {
	repo := &mockRuleRepo{coupons: map[string]discount.Rule{
		"ONCE": {ID: "c1", Code: "ONCE", Kind: discount.KindFixedAmount, Scope: discount.ScopeAll, Value: d("5"), UsageLimit: 1},
	}}
	svc := newTestService(t, repo, &mockMembers{})
	q, err := svc.Quote(context.Background(), QuoteRequest{TenantID: "t1", Lines: cart(), CouponCode: "ONCE"})
	require.NoError(t, err)
	_, ok := q.Result.CouponApplied()
	require.True(t, ok)

	// Another order used the coupon meanwhile.
	c := repo.coupons["ONCE"]
	c.UsageCount = 1
	repo.coupons["ONCE"] = c

	fresh, err := svc.Requote(context.Background(), q)
	require.NoError(t, err)
	_, ok = fresh.Result.CouponApplied()
	assert.False(t, ok)
	assert.ErrorIs(t, fresh.Result.CouponError(), discount.ErrUsageLimitReached)
	assert.Equal(t, q.Request.CouponCode, fresh.Request.CouponCode)
}
