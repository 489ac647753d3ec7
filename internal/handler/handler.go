// Package handler exposes the catalog, cart quoting and order placement over
// HTTP.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promotions/internal/domain/auth"
	"github.com/xenking/storefront-promotions/internal/domain/order"
	"github.com/xenking/storefront-promotions/internal/domain/product"
)

// Orders prices carts and places orders.
type Orders interface {
	Quote(ctx context.Context, req order.PlaceOrderRequest) (*order.QuoteResult, error)
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
	// DefaultShipping is charged when a request does not state a shipping
	// amount.
	DefaultShipping decimal.Decimal
}

// Handler serves the storefront API.
type Handler struct {
	products product.Repository
	orders   Orders
	apikeys  auth.Repository

	pepper          []byte
	defaultShipping decimal.Decimal
	validate        *validator.Validate
	// Rule and product names come from back-office input and are echoed to
	// storefronts verbatim otherwise.
	text *bluemonday.Policy
}

// New constructs a Handler.
func New(cfg Config, products product.Repository, orders Orders, apikeys auth.Repository) *Handler {
	return &Handler{
		products:        products,
		orders:          orders,
		apikeys:         apikeys,
		pepper:          cfg.APIKeyPepper,
		defaultShipping: cfg.DefaultShipping,
		validate:        newValidator(),
		text:            bluemonday.StrictPolicy(),
	}
}

// Routes returns the authenticated API router, meant to be mounted under
// /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.Authenticate)

	r.Get("/product", h.ListProducts)
	r.Get("/product/{productID}", h.GetProduct)
	r.Post("/cart/quote", h.QuoteCart)
	r.Post("/order", h.PlaceOrder)

	return r
}

func tenantID(r *http.Request) string {
	info, ok := auth.FromContext(r.Context())
	if !ok {
		return ""
	}
	return info.TenantID
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
