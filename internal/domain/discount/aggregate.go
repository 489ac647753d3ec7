package discount

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// aggregator accumulates per-rule outcomes into a Result in selection order.
type aggregator struct {
	lg   *zap.Logger
	cart []CartLine
	res  Result

	remaining decimal.Decimal
	gifts     []giftSource
	seen      map[string]struct{}
	exclusive int
	coupons   int
}

func newAggregator(lg *zap.Logger, cart []CartLine, cctx Context) *aggregator {
	original := subtotal(cart)
	return &aggregator{
		lg:   lg,
		cart: cart,
		res: Result{
			OriginalTotal: original,
			DiscountTotal: zero,
			ShippingTotal: floorAtZero(cctx.ShippingAmount),
		},
		remaining: original,
		seen:      make(map[string]struct{}),
	}
}

// add records the outcome of rule r. Rules without any effect are rejected
// with ErrNoEffect instead of being listed.
func (a *aggregator) add(r *Rule, out Outcome, rej *rejections) {
	out.Amount = a.checkAmount(r, out.Amount)
	if !out.hasEffect() {
		rej.add(r, ErrNoEffect)
		return
	}

	if _, dup := a.seen[r.ID]; dup {
		a.violation(&InvariantError{RuleID: r.ID, Detail: "rule applied twice"})
		return
	}
	a.seen[r.ID] = struct{}{}
	if !r.Stackable {
		a.exclusive++
	}
	if r.IsCoupon() {
		a.coupons++
	}

	// Stacked rules may together exceed the cart; later rules only get what
	// is left so the listed amounts always sum to DiscountTotal.
	amount := decimal.Min(out.Amount, a.remaining)
	a.remaining = a.remaining.Sub(amount)
	a.res.DiscountTotal = a.res.DiscountTotal.Add(amount)

	if out.FreeShipping {
		a.res.FreeShipping = true
	}
	if len(out.Gifts) > 0 {
		a.gifts = append(a.gifts, giftSource{rule: r, lines: out.Gifts})
	}
	a.res.AppliedRules = append(a.res.AppliedRules, AppliedRule{
		RuleID: r.ID,
		Name:   r.Name,
		Code:   r.Code,
		Kind:   r.Kind,
		Amount: amount,
	})
}

// checkAmount asserts 0 <= amount <= matching subtotal and clamps it.
func (a *aggregator) checkAmount(r *Rule, amount decimal.Decimal) decimal.Decimal {
	ceiling := subtotal(r.matchingLines(a.cart))
	switch {
	case amount.IsNegative():
		a.violation(&InvariantError{RuleID: r.ID, Detail: "negative amount " + amount.String()})
	case amount.GreaterThan(ceiling):
		a.violation(&InvariantError{RuleID: r.ID, Detail: "amount " + amount.String() + " exceeds matching subtotal " + ceiling.String()})
	default:
		return amount
	}
	return clampAmount(amount, ceiling)
}

// finish computes the final totals and asserts the result invariants.
func (a *aggregator) finish(gifts []CartLine) Result {
	res := a.res
	res.GiftLines = gifts

	if res.DiscountTotal.GreaterThan(res.OriginalTotal) {
		a.violation(&InvariantError{Detail: "discount total exceeds original total"})
		res.DiscountTotal = res.OriginalTotal
	}
	res.FinalTotal = floorAtZero(res.OriginalTotal.Sub(res.DiscountTotal))
	if res.FreeShipping {
		res.ShippingTotal = zero
	}

	if a.exclusive > 1 {
		a.violation(&InvariantError{Detail: "more than one exclusive rule applied"})
	}
	if a.coupons > 1 {
		a.violation(&InvariantError{Detail: "more than one coupon applied"})
	}
	for _, g := range gifts {
		if !g.UnitPrice.IsZero() {
			a.violation(&InvariantError{Detail: "gift line " + g.ProductID + " is priced"})
		}
	}
	return res
}

// violation reports a broken invariant. DPanic panics under development
// loggers, so tests fail loudly, and only logs in production.
func (a *aggregator) violation(err *InvariantError) {
	a.lg.DPanic("Discount invariant violated", zap.Error(err), zap.String("rule_id", err.RuleID))
}
