package discount

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// calculate computes the outcome of a single selected rule against the
// original cart prices. Amounts never compound across rules: every
// calculator sees undiscounted line prices.
func calculate(r *Rule, cart []CartLine) (Outcome, error) {
	matching := r.matchingLines(cart)
	base := subtotal(matching)

	switch r.Kind {
	case KindPercentage:
		return Outcome{Amount: clampAmount(percentOf(base, r.Value), base)}, nil
	case KindFixedAmount:
		return Outcome{Amount: clampAmount(decimal.Min(r.Value, base), base)}, nil
	case KindFreeShipping:
		return Outcome{Amount: zero, FreeShipping: true}, nil
	case KindQuantityTiered:
		return calcQuantityTiered(r, matching, base), nil
	case KindSpendThreshold:
		return calcSpendThreshold(r, base), nil
	case KindBuyXPayY:
		return calcBuyXPayY(r, matching, base), nil
	case KindBuyXGetY:
		return calcBuyXGetY(r, matching), nil
	default:
		return Outcome{}, errors.Wrapf(ErrUnsupportedKind, "%q", r.Kind)
	}
}

func calcQuantityTiered(r *Rule, matching []CartLine, base decimal.Decimal) Outcome {
	qty := units(matching)
	best := -1
	for i, t := range r.Tiers {
		if t.MinQuantity > qty {
			continue
		}
		if best < 0 || t.MinQuantity > r.Tiers[best].MinQuantity {
			best = i
		}
	}
	if best < 0 {
		return Outcome{Amount: zero}
	}
	return Outcome{Amount: clampAmount(percentOf(base, r.Tiers[best].PercentOff), base)}
}

func calcSpendThreshold(r *Rule, base decimal.Decimal) Outcome {
	if base.LessThan(r.Threshold.MinimumSpend) {
		return Outcome{Amount: zero}
	}
	return Outcome{Amount: clampAmount(floorAtZero(base.Sub(r.Threshold.FixedPrice)), base)}
}

// priceRun is a run of units sharing one unit price.
type priceRun struct {
	price decimal.Decimal
	count int
}

// calcBuyXPayY orders matching units from most to least expensive and splits
// them into buckets of X. Inside every full bucket the X-Y cheapest units are
// free; the trailing partial bucket, holding the cheapest units of the cart,
// earns nothing.
func calcBuyXPayY(r *Rule, matching []CartLine, base decimal.Decimal) Outcome {
	x, y := r.Bundle.X, r.Bundle.Y

	runs := make([]priceRun, 0, len(matching))
	total := 0
	for _, l := range matching {
		runs = append(runs, priceRun{price: l.UnitPrice, count: l.Quantity})
		total += l.Quantity
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].price.GreaterThan(runs[j].price)
	})

	// Positions in full buckets; within bucket k the free positions are
	// [k*x+y, k*x+x).
	limit := (total / x) * x
	freeBefore := func(n int) int {
		if n > limit {
			n = limit
		}
		rem := n%x - y
		if rem < 0 {
			rem = 0
		}
		return (n/x)*(x-y) + rem
	}

	amount := zero
	pos := 0
	for _, run := range runs {
		free := freeBefore(pos+run.count) - freeBefore(pos)
		if free > 0 {
			amount = amount.Add(run.price.Mul(decimal.NewFromInt(int64(free))))
		}
		pos += run.count
	}
	return Outcome{Amount: clampAmount(amount, base)}
}

// calcBuyXGetY adds Y zero-priced units for every X matching units. With a
// gift product the whole matching quantity counts towards it; without one,
// each product earns copies of itself, counted across all of its lines.
func calcBuyXGetY(r *Rule, matching []CartLine) Outcome {
	x, y := r.Bundle.X, r.Bundle.Y

	if r.Bundle.GiftProductID != "" {
		n := units(matching) / x * y
		if n == 0 {
			return Outcome{Amount: zero}
		}
		return Outcome{Amount: zero, Gifts: []CartLine{{
			ProductID: r.Bundle.GiftProductID,
			UnitPrice: zero,
			Quantity:  n,
		}}}
	}

	// Lines of one product are summed in first-seen order.
	var products []CartLine
	index := make(map[string]int, len(matching))
	for _, l := range matching {
		if i, ok := index[l.ProductID]; ok {
			products[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(products)
		products = append(products, CartLine{
			ProductID:  l.ProductID,
			CategoryID: l.CategoryID,
			UnitPrice:  zero,
			Quantity:   l.Quantity,
		})
	}

	var gifts []CartLine
	for _, p := range products {
		p.Quantity = p.Quantity / x * y
		if p.Quantity == 0 {
			continue
		}
		gifts = append(gifts, p)
	}
	return Outcome{Amount: zero, Gifts: gifts}
}
