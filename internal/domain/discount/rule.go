// Package discount implements the promotion calculation engine: given a cart,
// a set of discount rules and a calculation context it decides which rules
// apply, in what order, how much each one takes off, whether shipping becomes
// free and which gift lines are added.
//
// The engine is a pure function of its inputs. It never reads the clock,
// never touches storage and never increments coupon usage counters; those
// belong to the caller's commit path.
package discount

import (
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage takes a percentage off the matching subtotal.
	KindPercentage Kind = "percentage"
	// KindFixedAmount takes a fixed amount off, capped at the matching subtotal.
	KindFixedAmount Kind = "fixed_amount"
	// KindFreeShipping waives the shipping charge.
	KindFreeShipping Kind = "free_shipping"
	// KindBuyXGetY adds zero-priced gift units for every X matching units.
	KindBuyXGetY Kind = "buy_x_get_y"
	// KindBuyXPayY makes the customer pay for Y units out of every X.
	KindBuyXPayY Kind = "buy_x_pay_y"
	// KindQuantityTiered applies the percentage of the highest tier reached.
	KindQuantityTiered Kind = "quantity_tiered"
	// KindSpendThreshold sells the matching lines for a fixed price once a spend is reached.
	KindSpendThreshold Kind = "spend_threshold"
)

// AllKinds returns every kind the engine knows how to calculate.
func AllKinds() []Kind {
	return []Kind{
		KindPercentage,
		KindFixedAmount,
		KindFreeShipping,
		KindBuyXGetY,
		KindBuyXPayY,
		KindQuantityTiered,
		KindSpendThreshold,
	}
}

// Valid reports whether k is one of AllKinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPercentage, KindFixedAmount, KindFreeShipping, KindBuyXGetY,
		KindBuyXPayY, KindQuantityTiered, KindSpendThreshold:
		return true
	default:
		return false
	}
}

// Scope selects the cart lines a rule may affect.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeCategory Scope = "category"
	ScopeProduct  Scope = "product"
	ScopeMember   Scope = "member"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeAll, ScopeCategory, ScopeProduct, ScopeMember:
		return true
	default:
		return false
	}
}

// CartLine is an immutable snapshot of one cart line.
type CartLine struct {
	ProductID  string
	CategoryID string
	UnitPrice  decimal.Decimal
	Quantity   int
}

// Tier is one step of a quantity_tiered rule.
type Tier struct {
	MinQuantity int
	PercentOff  decimal.Decimal
}

// SpendThreshold parameterises a spend_threshold rule: once the matching
// subtotal reaches MinimumSpend, the matching lines cost FixedPrice.
type SpendThreshold struct {
	MinimumSpend decimal.Decimal
	FixedPrice   decimal.Decimal
}

// Bundle parameterises buy_x_pay_y (pay Y of every X) and buy_x_get_y
// (get Y gifts for every X). GiftProductID is only used by buy_x_get_y; when
// empty the gift is the purchased product itself.
type Bundle struct {
	X             int
	Y             int
	GiftProductID string
}

// Rule is a discount or promotion rule. A rule with a Code is a coupon and is
// only considered when that code is supplied; rules without a code are
// automatic.
type Rule struct {
	ID   string
	Name string
	Kind Kind

	// Value is the percentage (0-100) for KindPercentage and the amount for
	// KindFixedAmount. Other kinds read their typed parameters below.
	Value     decimal.Decimal
	Tiers     []Tier
	Threshold SpendThreshold
	Bundle    Bundle

	Scope       Scope
	CategoryIDs []string
	ProductIDs  []string

	MinimumCartAmount decimal.NullDecimal
	// MinimumQuantity of zero means no minimum.
	MinimumQuantity int

	ActiveFrom  *time.Time
	ActiveUntil *time.Time

	// Priority orders rules ascending: lower values apply first.
	Priority  int
	Stackable bool

	// UsageLimit of zero means unlimited.
	UsageLimit int
	UsageCount int

	Code string
}

// IsCoupon reports whether the rule is gated behind a code.
func (r *Rule) IsCoupon() bool {
	return r.Code != ""
}

// MatchesCode reports whether code selects this coupon. Codes compare
// case-insensitively, ignoring surrounding whitespace.
func (r *Rule) MatchesCode(code string) bool {
	code = strings.TrimSpace(code)
	return r.IsCoupon() && code != "" && strings.EqualFold(r.Code, code)
}

// label identifies the rule in rejection messages: the code for coupons,
// the name or ID otherwise.
func (r *Rule) label() string {
	switch {
	case r.IsCoupon():
		return "coupon " + strings.ToUpper(r.Code)
	case r.Name != "":
		return r.Name
	default:
		return "rule " + r.ID
	}
}

// Validate checks that the rule's kind, scope and kind-specific parameters
// are usable. Rules failing validation are never candidates.
func (r *Rule) Validate() error {
	if !r.Kind.Valid() {
		return errors.Errorf("unsupported discount kind %q", r.Kind)
	}
	if !r.Scope.Valid() {
		return errors.Errorf("unsupported scope %q", r.Scope)
	}
	if r.MinimumQuantity < 0 {
		return errors.New("minimum quantity is negative")
	}
	if r.UsageLimit < 0 {
		return errors.New("usage limit is negative")
	}
	if r.ActiveFrom != nil && r.ActiveUntil != nil && r.ActiveUntil.Before(*r.ActiveFrom) {
		return errors.New("active window ends before it starts")
	}

	switch r.Kind {
	case KindPercentage:
		if r.Value.IsNegative() || r.Value.GreaterThan(hundred) {
			return errors.Errorf("percentage %s out of range", r.Value)
		}
	case KindFixedAmount:
		if r.Value.IsNegative() {
			return errors.Errorf("fixed amount %s is negative", r.Value)
		}
	case KindFreeShipping:
	case KindQuantityTiered:
		if len(r.Tiers) == 0 {
			return errors.New("no tiers")
		}
		for _, t := range r.Tiers {
			if t.MinQuantity < 1 {
				return errors.Errorf("tier minimum quantity %d must be positive", t.MinQuantity)
			}
			if t.PercentOff.IsNegative() || t.PercentOff.GreaterThan(hundred) {
				return errors.Errorf("tier percentage %s out of range", t.PercentOff)
			}
		}
	case KindSpendThreshold:
		if r.Threshold.MinimumSpend.IsNegative() || r.Threshold.FixedPrice.IsNegative() {
			return errors.New("threshold values must not be negative")
		}
	case KindBuyXPayY:
		if r.Bundle.Y < 0 || r.Bundle.X <= r.Bundle.Y {
			return errors.Errorf("buy %d pay %d: x must exceed y", r.Bundle.X, r.Bundle.Y)
		}
	case KindBuyXGetY:
		if r.Bundle.X < 1 || r.Bundle.Y < 1 {
			return errors.Errorf("buy %d get %d: x and y must be positive", r.Bundle.X, r.Bundle.Y)
		}
	}
	return nil
}

// matches reports whether line l falls inside the rule's scope.
func (r *Rule) matches(l CartLine) bool {
	switch r.Scope {
	case ScopeCategory:
		return l.CategoryID != "" && slices.Contains(r.CategoryIDs, l.CategoryID)
	case ScopeProduct:
		return slices.Contains(r.ProductIDs, l.ProductID)
	default:
		return true
	}
}

// matchingLines returns the lines the rule may affect, in cart order.
func (r *Rule) matchingLines(cart []CartLine) []CartLine {
	if r.Scope != ScopeCategory && r.Scope != ScopeProduct {
		return cart
	}
	out := make([]CartLine, 0, len(cart))
	for _, l := range cart {
		if r.matches(l) {
			out = append(out, l)
		}
	}
	return out
}
