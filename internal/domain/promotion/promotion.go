// Package promotion loads discount rules for a tenant, runs the discount
// engine against a cart and commits coupon usage once an order is placed.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promotions/internal/domain/discount"
)

var (
	// ErrCouponNotFound is returned by RuleRepository.FindByCode when no
	// coupon carries the code.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrUsageExhausted is returned by RuleRepository.ConsumeUsage when the
	// rule reached its usage limit.
	ErrUsageExhausted = errors.New("usage limit exhausted")
	// ErrCouponUnavailable is returned by Commit when a quoted coupon can no
	// longer be used.
	ErrCouponUnavailable = errors.New("coupon no longer available")
)

// RuleRepository provides discount rules of a tenant.
type RuleRepository interface {
	// ListAutomatic returns rules without a code that may be active at now.
	ListAutomatic(ctx context.Context, tenantID string, now time.Time) ([]discount.Rule, error)
	// FindByCode returns the coupon with the code, compared case-insensitively.
	FindByCode(ctx context.Context, tenantID, code string) (*discount.Rule, error)
	// ConsumeUsage atomically increments the usage counter of the rule unless
	// its limit is reached.
	ConsumeUsage(ctx context.Context, tenantID, ruleID string) error
}

// MemberResolver tells registered members apart from guests.
type MemberResolver interface {
	IsMember(ctx context.Context, tenantID, customerID string) (bool, error)
}

// QuoteRequest is the input of Service.Quote.
type QuoteRequest struct {
	TenantID string
	// CustomerID is empty for guests.
	CustomerID     string
	Lines          []discount.CartLine
	CouponCode     string
	ShippingAmount decimal.Decimal
}

// Quote is a priced cart. It is a preview until committed.
type Quote struct {
	Request QuoteRequest
	At      time.Time
	Result  discount.Result
}
