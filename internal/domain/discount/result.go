package discount

import (
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rejection reasons. A rejected rule never contributes to the result; the
// reason is reported in Result.Rejections and rendered into Result.Errors.
var (
	ErrInvalidRule           = errors.New("invalid rule")
	ErrCouponNotFound        = errors.New("coupon code not found")
	ErrDuplicateCoupon       = errors.New("another coupon with this code was already considered")
	ErrDuplicateRule         = errors.New("another rule with this id was already considered")
	ErrNotYetActive          = errors.New("not active yet")
	ErrExpired               = errors.New("code expired")
	ErrUsageLimitReached     = errors.New("usage limit reached")
	ErrMembersOnly           = errors.New("members only")
	ErrMinimumAmountNotMet   = errors.New("minimum cart amount not met")
	ErrMinimumQuantityNotMet = errors.New("minimum quantity not met")
	ErrScopeNotMatched       = errors.New("no matching items in cart")
	ErrExcludedByExclusive   = errors.New("excluded by a higher-priority exclusive discount")
	ErrNoEffect              = errors.New("no discount applicable to this cart")
	ErrGiftLimitReached      = errors.New("gift limit reached")

	// ErrUnsupportedKind is returned by a calculator for a kind it does not
	// handle. Reaching it means Rule.Validate and calculate disagree.
	ErrUnsupportedKind = errors.New("unsupported discount kind")
)

// Context carries the per-call facts the engine needs besides the cart and
// rules. Now is injected so a calculation is reproducible.
type Context struct {
	IsMember       bool
	ShippingAmount decimal.Decimal
	Now            time.Time
	// CouponCode is the code the customer entered, if any.
	CouponCode string
}

// AppliedRule records the contribution of one applied rule.
type AppliedRule struct {
	RuleID string
	Name   string
	Code   string
	Kind   Kind
	Amount decimal.Decimal
}

// Rejection records why a rule was not applied.
type Rejection struct {
	RuleID string
	Code   string
	Reason error
}

// Error renders the rejection as shown in Result.Errors.
func (r Rejection) Error() string {
	return r.Reason.Error()
}

// Unwrap exposes the sentinel reason to errors.Is.
func (r Rejection) Unwrap() error {
	return r.Reason
}

// Result is the outcome of a calculation.
type Result struct {
	OriginalTotal decimal.Decimal
	DiscountTotal decimal.Decimal
	FinalTotal    decimal.Decimal
	FreeShipping  bool
	// ShippingTotal is the shipping charge after promotions: zero when
	// FreeShipping is set, the context's shipping amount otherwise.
	ShippingTotal decimal.Decimal
	AppliedRules  []AppliedRule
	GiftLines     []CartLine
	Rejections    []Rejection
	Errors        []string
}

// CouponApplied returns the applied coupon, if any.
func (r *Result) CouponApplied() (AppliedRule, bool) {
	for _, a := range r.AppliedRules {
		if a.Code != "" {
			return a, true
		}
	}
	return AppliedRule{}, false
}

// CouponError returns the first rejection concerning the supplied coupon
// code. These are the only rejections meant for the customer; rejections of
// automatic rules are diagnostics. Rejections of an applied coupon and of
// duplicates are skipped.
func (r *Result) CouponError() error {
	for _, rej := range r.Rejections {
		if rej.Code == "" && !errors.Is(rej.Reason, ErrCouponNotFound) {
			continue
		}
		if errors.Is(rej.Reason, ErrDuplicateCoupon) || errors.Is(rej.Reason, ErrDuplicateRule) {
			continue
		}
		if rej.RuleID != "" && r.applied(rej.RuleID) {
			continue
		}
		return rej
	}
	return nil
}

func (r *Result) applied(ruleID string) bool {
	return slices.ContainsFunc(r.AppliedRules, func(a AppliedRule) bool {
		return a.RuleID == ruleID
	})
}

// Outcome is what a single calculator produces for one rule.
type Outcome struct {
	Amount       decimal.Decimal
	FreeShipping bool
	Gifts        []CartLine
}

func (o Outcome) hasEffect() bool {
	return o.Amount.IsPositive() || o.FreeShipping || len(o.Gifts) > 0
}

// InvariantError reports a result that breaks an engine invariant. It always
// indicates a bug in a calculator, never bad input.
type InvariantError struct {
	RuleID string
	Detail string
}

func (e *InvariantError) Error() string {
	if e.RuleID == "" {
		return "discount invariant violated: " + e.Detail
	}
	return "discount invariant violated by rule " + e.RuleID + ": " + e.Detail
}
