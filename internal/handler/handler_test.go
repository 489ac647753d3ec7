package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-promotions/internal/domain/auth"
	"github.com/xenking/storefront-promotions/internal/domain/discount"
	"github.com/xenking/storefront-promotions/internal/domain/order"
	"github.com/xenking/storefront-promotions/internal/domain/product"
	"github.com/xenking/storefront-promotions/internal/domain/promotion"
)

var (
	testPepper = []byte("pepper")
	testKey    = "secret-key"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type mockProducts struct {
	products []product.Product
	err      error
}

func (m *mockProducts) List(_ context.Context, tenantID string) ([]product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []product.Product
	for _, p := range m.products {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProducts) GetByID(ctx context.Context, tenantID, id string) (*product.Product, error) {
	list, err := m.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProducts) GetByIDs(context.Context, string, []string) ([]product.Product, error) {
	return nil, errors.New("not used")
}

type mockOrders struct {
	got     order.PlaceOrderRequest
	quoteFn func(req order.PlaceOrderRequest) (*order.QuoteResult, error)
	placeFn func(req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
}

func (m *mockOrders) Quote(_ context.Context, req order.PlaceOrderRequest) (*order.QuoteResult, error) {
	m.got = req
	return m.quoteFn(req)
}

func (m *mockOrders) PlaceOrder(_ context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error) {
	m.got = req
	return m.placeFn(req)
}

type mockAPIKeys struct {
	keys map[string]*auth.APIKeyInfo
	err  error
}

func (m *mockAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

func newAPIKeys() *mockAPIKeys {
	hash := auth.HashKey(testPepper, testKey)
	return &mockAPIKeys{keys: map[string]*auth.APIKeyInfo{
		hash: {ID: "k1", TenantID: "t1", KeyHash: hash, Name: "storefront"},
	}}
}

func sampleQuote(req order.PlaceOrderRequest) *promotion.Quote {
	return &promotion.Quote{
		Request: promotion.QuoteRequest{
			TenantID: req.TenantID,
			Lines: []discount.CartLine{
				{ProductID: "p1", UnitPrice: d("10"), Quantity: 2},
			},
			CouponCode:     req.CouponCode,
			ShippingAmount: req.ShippingAmount,
		},
		Result: discount.Result{
			OriginalTotal: d("20"),
			DiscountTotal: d("2"),
			FinalTotal:    d("18"),
			ShippingTotal: req.ShippingAmount,
			AppliedRules: []discount.AppliedRule{
				{RuleID: "r1", Name: "<b>Ten</b> off", Code: "TEN", Kind: discount.KindPercentage, Amount: d("2")},
			},
			GiftLines: []discount.CartLine{{ProductID: "p9", Quantity: 1}},
		},
	}
}

var testProducts = []product.Product{
	{ID: "p1", TenantID: "t1", Name: "<b>Waffle</b>", Price: d("10"), CategoryID: "waffles"},
	{ID: "p2", TenantID: "t1", Name: "Tea", Price: d("3.50"), CategoryID: "drinks"},
	{ID: "x1", TenantID: "t2", Name: "Hidden", Price: d("1")},
}

type env struct {
	router  http.Handler
	orders  *mockOrders
	apikeys *mockAPIKeys
}

func newEnv(t *testing.T) *env {
	t.Helper()
	orders := &mockOrders{
		quoteFn: func(req order.PlaceOrderRequest) (*order.QuoteResult, error) {
			return &order.QuoteResult{Quote: sampleQuote(req), Products: testProducts[:1]}, nil
		},
		placeFn: func(req order.PlaceOrderRequest) (*order.PlaceOrderResult, error) {
			return &order.PlaceOrderResult{
				Order:    &order.Order{ID: "order-1", CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
				Quote:    sampleQuote(req),
				Products: testProducts[:1],
			}, nil
		},
	}
	apikeys := newAPIKeys()
	h := New(Config{APIKeyPepper: testPepper, DefaultShipping: d("4.99")}, &mockProducts{products: testProducts}, orders, apikeys)

	r := chi.NewRouter()
	r.Mount("/api", h.Routes())
	return &env{router: r, orders: orders, apikeys: apikeys}
}

func (e *env) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(APIKeyHeader, testKey)
	for k, v := range header {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{name: "api key header", want: http.StatusOK},
		{name: "bearer token", header: map[string]string{APIKeyHeader: "", "Authorization": "Bearer " + testKey}, want: http.StatusOK},
		{name: "missing", header: map[string]string{APIKeyHeader: ""}, want: http.StatusUnauthorized},
		{name: "unknown key", header: map[string]string{APIKeyHeader: "nope"}, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			w := e.do(http.MethodGet, "/api/product", "", tt.header)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"code":401,"message":"unauthorized"}`, w.Body.String())
			}
		})
	}

	t.Run("stored hash mismatch", func(t *testing.T) {
		e := newEnv(t)
		for _, info := range e.apikeys.keys {
			info.KeyHash = auth.HashKey(testPepper, "other")
		}
		w := e.do(http.MethodGet, "/api/product", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("lookup failure", func(t *testing.T) {
		e := newEnv(t)
		e.apikeys.err = errors.New("connection reset")
		w := e.do(http.MethodGet, "/api/product", "", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestListProducts(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/api/product", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	got := decode[[]productResponse](t, w)
	require.Len(t, got, 2, "only the caller's tenant is listed")
	assert.Equal(t, "Waffle", got[0].Name)
	assert.Equal(t, "waffles", got[0].Category)
	assert.True(t, d("3.5").Equal(got[1].Price))
}

func TestGetProduct(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/product/p2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Tea", decode[productResponse](t, w).Name)

	w = e.do(http.MethodGet, "/api/product/x1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":404,"message":"product not found"}`, w.Body.String())
}

func TestQuoteCart(t *testing.T) {
	e := newEnv(t)
	body := `{"customerId":" c1 ","couponCode":" ten ","items":[{"productId":"p1","quantity":2}]}`

	w := e.do(http.MethodPost, "/api/cart/quote", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, order.PlaceOrderRequest{
		TenantID:       "t1",
		CustomerID:     "c1",
		CouponCode:     "ten",
		ShippingAmount: d("4.99"),
		Items:          []order.OrderItem{{ProductID: "p1", Quantity: 2}},
	}, e.orders.got)

	got := decode[quoteResponse](t, w)
	assert.True(t, d("20").Equal(got.Subtotal))
	assert.True(t, d("2").Equal(got.Discounts))
	assert.True(t, d("22.99").Equal(got.Total), "total includes shipping")
	assert.Equal(t, "TEN", got.CouponCode)
	require.Len(t, got.AppliedRules, 1)
	assert.Equal(t, "Ten off", got.AppliedRules[0].Name)
	assert.Equal(t, []itemResponse{{ProductID: "p9", Quantity: 1}}, got.Gifts)
	assert.Equal(t, []itemResponse{{ProductID: "p1", Quantity: 2}}, got.Items)
}

func TestQuoteCart_ShippingAmount(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/cart/quote", `{"shippingAmount":"0","items":[{"productId":"p1","quantity":1}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, e.orders.got.ShippingAmount.IsZero())

	w = e.do(http.MethodPost, "/api/cart/quote", `{"shippingAmount":-1,"items":[{"productId":"p1","quantity":1}]}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestQuoteCart_CouponError(t *testing.T) {
	e := newEnv(t)
	e.orders.quoteFn = func(req order.PlaceOrderRequest) (*order.QuoteResult, error) {
		q := sampleQuote(req)
		q.Result.AppliedRules = nil
		q.Result.Rejections = []discount.Rejection{{RuleID: "r1", Code: "TEN", Reason: discount.ErrUsageLimitReached}}
		return &order.QuoteResult{Quote: q}, nil
	}

	w := e.do(http.MethodPost, "/api/cart/quote", `{"couponCode":"TEN","items":[{"productId":"p1","quantity":1}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[quoteResponse](t, w)
	assert.Empty(t, got.CouponCode)
	assert.Equal(t, "usage limit reached", got.CouponError)
	assert.Empty(t, got.AppliedRules)
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed json", body: `{"items":`, want: http.StatusBadRequest},
		{name: "no items", body: `{"items":[]}`, want: http.StatusUnprocessableEntity},
		{name: "missing items", body: `{}`, want: http.StatusUnprocessableEntity},
		{name: "zero quantity", body: `{"items":[{"productId":"p1","quantity":0}]}`, want: http.StatusUnprocessableEntity},
		{name: "missing product id", body: `{"items":[{"quantity":1}]}`, want: http.StatusUnprocessableEntity},
		{name: "coupon too long", body: `{"couponCode":"` + strings.Repeat("X", 65) + `","items":[{"productId":"p1","quantity":1}]}`, want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			w := e.do(http.MethodPost, "/api/order", tt.body, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	t.Run("message names the json field", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(http.MethodPost, "/api/order", `{"items":[{"productId":"p1","quantity":0}]}`, nil)
		got := decode[errorResponse](t, w)
		assert.Equal(t, "invalid field items[0].quantity: failed gt", got.Message)
	})
}

func TestPlaceOrder(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/order", `{"items":[{"productId":"p1","quantity":2}]}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[orderResponse](t, w)
	assert.Equal(t, "order-1", got.ID)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), got.CreatedAt.UTC())
	assert.True(t, d("22.99").Equal(got.Total))
	require.Len(t, got.Products, 1)
	assert.Equal(t, "p1", got.Products[0].ID)
}

func TestPlaceOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "product not found", err: &order.ProductNotFoundError{ProductID: "zz"}, want: http.StatusUnprocessableEntity},
		{name: "invalid quantity", err: &order.InvalidQuantityError{ProductID: "p1"}, want: http.StatusUnprocessableEntity},
		{name: "empty items", err: order.ErrEmptyItems, want: http.StatusUnprocessableEntity},
		{name: "internal", err: errors.New("db down"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.orders.placeFn = func(order.PlaceOrderRequest) (*order.PlaceOrderResult, error) {
				return nil, tt.err
			}
			w := e.do(http.MethodPost, "/api/order", `{"items":[{"productId":"p1","quantity":1}]}`, nil)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "db down")
			}
		})
	}
}

func TestPlaceOrder_CouponUnavailable(t *testing.T) {
	e := newEnv(t)
	e.orders.placeFn = func(req order.PlaceOrderRequest) (*order.PlaceOrderResult, error) {
		fresh := sampleQuote(req)
		fresh.Result.AppliedRules = nil
		fresh.Result.DiscountTotal = decimal.Zero
		fresh.Result.FinalTotal = d("20")
		return nil, errors.Wrap(&order.CouponUnavailableError{Code: "TEN", Quote: fresh}, "place order")
	}

	w := e.do(http.MethodPost, "/api/order", `{"couponCode":"TEN","items":[{"productId":"p1","quantity":2}]}`, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	got := decode[errorResponse](t, w)
	assert.Equal(t, http.StatusConflict, got.Code)
	assert.Equal(t, "coupon TEN is no longer available", got.Message)
	require.NotNil(t, got.Quote)
	assert.True(t, d("24.99").Equal(got.Quote.Total))
	assert.Empty(t, got.Quote.AppliedRules)
}
