package discount

import (
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// MinQuantityBasis selects which cart units count towards a rule's
// MinimumQuantity.
type MinQuantityBasis string

const (
	// MinQuantityMatchingLines counts only units on lines inside the rule's scope.
	MinQuantityMatchingLines MinQuantityBasis = "matching"
	// MinQuantityAllLines counts every unit in the cart.
	MinQuantityAllLines MinQuantityBasis = "all"
)

// Valid reports whether b is a known basis.
func (b MinQuantityBasis) Valid() bool {
	return b == MinQuantityMatchingLines || b == MinQuantityAllLines
}

// rejections collects rejected rules, and their rendered messages, in the
// order they were rejected.
type rejections struct {
	items    []Rejection
	messages []string
}

func (rs *rejections) add(r *Rule, reason error) {
	rs.items = append(rs.items, Rejection{RuleID: r.ID, Code: r.Code, Reason: reason})
	rs.messages = append(rs.messages, r.label()+": "+reason.Error())
}

func (rs *rejections) addCode(code string, reason error) {
	rs.items = append(rs.items, Rejection{Code: code, Reason: reason})
	rs.messages = append(rs.messages, "coupon "+strings.ToUpper(code)+": "+reason.Error())
}

// filter returns the rules that may apply to cart, ordered by ascending
// priority. Only the first rule with a given ID is considered. Automatic rules keep their input order among equal priorities
// and come before the coupon, which is evaluated after the stored list.
func (e *Engine) filter(cart []CartLine, rules []Rule, cctx Context, rej *rejections) []*Rule {
	cartSubtotal := subtotal(cart)
	cartUnits := units(cart)

	candidates := make([]*Rule, 0, len(rules))
	var coupons []*Rule
	seen := make(map[string]struct{}, len(rules))

	for i := range rules {
		r := &rules[i]
		if _, dup := seen[r.ID]; dup {
			rej.add(r, ErrDuplicateRule)
			continue
		}
		seen[r.ID] = struct{}{}
		if r.IsCoupon() {
			if r.MatchesCode(cctx.CouponCode) {
				coupons = append(coupons, r)
			}
			continue
		}
		if reason := e.check(r, cart, cartSubtotal, cartUnits, cctx); reason != nil {
			rej.add(r, reason)
			continue
		}
		candidates = append(candidates, r)
	}

	switch {
	case len(coupons) == 0 && strings.TrimSpace(cctx.CouponCode) != "":
		rej.addCode(strings.TrimSpace(cctx.CouponCode), ErrCouponNotFound)
	case len(coupons) > 0:
		coupon := coupons[0]
		for _, dup := range coupons[1:] {
			rej.add(dup, ErrDuplicateCoupon)
		}
		if reason := e.check(coupon, cart, cartSubtotal, cartUnits, cctx); reason != nil {
			rej.add(coupon, reason)
		} else {
			candidates = append(candidates, coupon)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})
	return candidates
}

// check returns the first reason r cannot apply, or nil.
func (e *Engine) check(r *Rule, cart []CartLine, cartSubtotal decimal.Decimal, cartUnits int, cctx Context) error {
	if err := r.Validate(); err != nil {
		return errors.Wrap(ErrInvalidRule, err.Error())
	}
	if r.ActiveFrom != nil && cctx.Now.Before(*r.ActiveFrom) {
		return ErrNotYetActive
	}
	if r.ActiveUntil != nil && cctx.Now.After(*r.ActiveUntil) {
		return ErrExpired
	}
	if r.UsageLimit > 0 && r.UsageCount >= r.UsageLimit {
		return ErrUsageLimitReached
	}
	if r.Scope == ScopeMember && !cctx.IsMember {
		return ErrMembersOnly
	}
	if r.MinimumCartAmount.Valid && cartSubtotal.LessThan(r.MinimumCartAmount.Decimal) {
		return ErrMinimumAmountNotMet
	}

	matching := r.matchingLines(cart)
	if r.MinimumQuantity > 0 {
		counted := units(matching)
		if e.minQuantityBasis == MinQuantityAllLines {
			counted = cartUnits
		}
		if counted < r.MinimumQuantity {
			return ErrMinimumQuantityNotMet
		}
	}
	if len(matching) == 0 {
		return ErrScopeNotMatched
	}
	return nil
}
